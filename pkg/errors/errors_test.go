package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

func TestAlreadyExists_AsAndFields(t *testing.T) {
	err := collaberrors.NewAlreadyExists("store", "StoreOperation", "version", 7, 9)

	var ae *collaberrors.AlreadyExists
	require.True(t, stderrors.As(err, &ae))
	assert.Equal(t, "version", ae.EntityName)
	assert.Equal(t, 7, ae.Key)
	assert.Equal(t, 9, ae.Value)
	assert.Contains(t, err.Error(), "already exists")
}

func TestNotFound_Unwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := collaberrors.NewNotFound("store", "LoadSchema", "schema", "abc123")
	err.Cause = cause

	require.True(t, stderrors.Is(err, cause))
}

func TestEntityTooLarge_Message(t *testing.T) {
	err := collaberrors.NewEntityTooLarge("backend", "RegisterSchema", "schema", 1024, 512)
	assert.Contains(t, err.Error(), "1024")
	assert.Contains(t, err.Error(), "512")
}

func TestTypeError_Message(t *testing.T) {
	err := collaberrors.NewTypeError("backend", "GetSnapshot", "richtext-v2")
	assert.Contains(t, err.Error(), "richtext-v2")
}

func TestDisconnectedAndAssert(t *testing.T) {
	d := collaberrors.NewDisconnected("rpc", "submitOperation")
	assert.Contains(t, d.Error(), "disconnected")

	a := collaberrors.NewAssert("cache", "submit", "version must be contiguous")
	assert.Contains(t, a.Error(), "version must be contiguous")
}
