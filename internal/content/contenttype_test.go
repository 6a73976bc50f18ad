package content_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AltairaLabs/collabkit/internal/content"
)

func TestApplySchemaChangeCarryOver_NoChange(t *testing.T) {
	prior := content.Snapshot{Type: "counter", ID: "doc1", Version: 2, Schema: "h1", Data: json.RawMessage(`5`)}
	op := content.Operation{Type: "counter", ID: "doc1", Version: 3, Schema: "h1", Data: json.RawMessage(`2`)}

	_, ok := content.ApplySchemaChangeCarryOver(prior, op)
	assert.False(t, ok)
}

func TestApplySchemaChangeCarryOver_SchemaAdvances(t *testing.T) {
	prior := content.Snapshot{Type: "counter", ID: "doc1", Version: 2, Schema: "h1", Data: json.RawMessage(`5`)}
	op := content.Operation{Type: "counter", ID: "doc1", Version: 3, Schema: "h2", Data: nil}

	snap, ok := content.ApplySchemaChangeCarryOver(prior, op)
	assert.True(t, ok)
	assert.Equal(t, "h2", snap.Schema)
	assert.Equal(t, json.RawMessage(`5`), snap.Data)
	assert.Equal(t, int64(3), snap.Version)
}
