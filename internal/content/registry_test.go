package content_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/internal/content"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

type fakeContentType struct{}

func (fakeContentType) ValidateSchema(s content.Schema) (content.Schema, error) { return s, nil }
func (fakeContentType) HasSchema(hash string) bool                             { return false }
func (fakeContentType) RegisterSchema(s content.Schema) error                  { return nil }
func (fakeContentType) Apply(prior content.Snapshot, op content.Operation) (content.Snapshot, error) {
	return prior, nil
}

func TestRegistry_GetUnknownType(t *testing.T) {
	r := content.NewRegistry()
	_, err := r.Get("missing")

	var typeErr *collaberrors.TypeError
	require.True(t, stderrors.As(err, &typeErr))
	assert.Equal(t, "missing", typeErr.Type)
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := content.NewRegistry()
	r.Register("counter", fakeContentType{})
	r.Register("jsonschema", fakeContentType{})

	assert.Equal(t, []string{"counter", "jsonschema"}, r.List())

	ct, err := r.Get("counter")
	require.NoError(t, err)
	assert.NotNil(t, ct)
}
