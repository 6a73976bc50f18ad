package counter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/contenttype/counter"
)

func op(version int64, delta int) content.Operation {
	data, _ := json.Marshal(delta)
	return content.Operation{Type: "counter", ID: "doc1", Version: version, Schema: "h1", Data: data}
}

// TestApply_E1LinearEditing reproduces spec.md §8 scenario E1: submitting
// deltas 10,20,30,40,50,60 across versions 1-6 yields a cumulative value of
// 210 at the tip and 60 at version 3.
func TestApply_E1LinearEditing(t *testing.T) {
	ct := counter.New()
	snap := content.Empty("counter", "doc1")

	deltas := []int{10, 20, 30, 40, 50, 60}
	var atVersion3 content.Snapshot
	for i, d := range deltas {
		var err error
		snap, err = ct.Apply(snap, op(int64(i+1), d))
		require.NoError(t, err)
		if snap.Version == 3 {
			atVersion3 = snap
		}
	}

	var final, v3 int64
	require.NoError(t, json.Unmarshal(snap.Data, &final))
	require.NoError(t, json.Unmarshal(atVersion3.Data, &v3))

	assert.Equal(t, int64(210), final)
	assert.Equal(t, int64(60), v3)
}

func TestApply_RejectsVersionSkip(t *testing.T) {
	ct := counter.New()
	prior := content.Snapshot{Type: "counter", ID: "doc1", Version: 6, Schema: "h1", Data: json.RawMessage(`60`)}

	_, err := ct.Apply(prior, op(8, 5))
	assert.Error(t, err)
}

func TestApply_SchemaChangeCarriesDataUnchanged(t *testing.T) {
	ct := counter.New()
	prior := content.Snapshot{Type: "counter", ID: "doc1", Version: 2, Schema: "h1", Data: json.RawMessage(`30`)}
	changeOp := content.Operation{Type: "counter", ID: "doc1", Version: 3, Schema: "h2", Data: nil}

	snap, err := ct.Apply(prior, changeOp)
	require.NoError(t, err)
	assert.Equal(t, "h2", snap.Schema)
	assert.JSONEq(t, `30`, string(snap.Data))
}

func TestValidateSchema_RejectsMalformedJSON(t *testing.T) {
	ct := counter.New()
	_, err := ct.ValidateSchema(content.Schema{Type: "counter", Data: []byte("{not json")})
	assert.Error(t, err)
}

func TestRegisterSchema_IdempotentHasSchema(t *testing.T) {
	ct := counter.New()
	s := content.Schema{Type: "counter", Hash: "h1", Data: []byte(`{}`)}
	assert.False(t, ct.HasSchema("h1"))
	require.NoError(t, ct.RegisterSchema(s))
	require.NoError(t, ct.RegisterSchema(s))
	assert.True(t, ct.HasSchema("h1"))
}
