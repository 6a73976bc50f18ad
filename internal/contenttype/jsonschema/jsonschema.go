// Package jsonschema provides a reference ContentType whose Schema.data is
// a JSON Schema document and whose operations are RFC 7396 JSON merge
// patches applied against the prior snapshot's data. It is the model a
// real rich-text or structured-document content type would be grounded on.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AltairaLabs/collabkit/internal/content"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// ContentType implements content.ContentType with JSON-Schema-validated
// documents and merge-patch operations.
type ContentType struct {
	mu      sync.RWMutex
	schemas map[string]gojsonschema.JSONLoader
}

// New returns a ready-to-register jsonschema ContentType.
func New() *ContentType {
	return &ContentType{schemas: make(map[string]gojsonschema.JSONLoader)}
}

// ValidateSchema requires Data to be a well-formed JSON Schema document.
func (c *ContentType) ValidateSchema(s content.Schema) (content.Schema, error) {
	if len(s.Data) == 0 {
		return content.Schema{}, collaberrors.NewInvalidEntity("contenttype.jsonschema", "ValidateSchema", "schema", s, "data")
	}
	loader := gojsonschema.NewBytesLoader(s.Data)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return content.Schema{}, collaberrors.NewInvalidEntity("contenttype.jsonschema", "ValidateSchema", "schema", s, "data")
	}
	return s, nil
}

// HasSchema reports whether hash has been registered.
func (c *ContentType) HasSchema(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.schemas[hash]
	return ok
}

// RegisterSchema records hash's loader for later document validation.
// Idempotent.
func (c *ContentType) RegisterSchema(s content.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[s.Hash] = gojsonschema.NewBytesLoader(s.Data)
	return nil
}

// Apply merge-patches op.Data onto prior.Data per RFC 7396, then validates
// the result against the registered schema for op.Schema. Carries data
// unchanged across a schema change, per spec.md §9.
func (c *ContentType) Apply(prior content.Snapshot, op content.Operation) (content.Snapshot, error) {
	if snap, ok := content.ApplySchemaChangeCarryOver(prior, op); ok {
		return snap, nil
	}

	if op.Version != prior.Version+1 {
		return content.Snapshot{}, collaberrors.NewAssert("contenttype.jsonschema", "Apply",
			"op.version must equal priorSnapshot.version + 1")
	}
	if prior.Version != 0 && (op.Type != prior.Type || op.ID != prior.ID) {
		return content.Snapshot{}, collaberrors.NewAssert("contenttype.jsonschema", "Apply", "op.type/op.id must match priorSnapshot")
	}

	merged, err := mergePatch(prior.Data, op.Data)
	if err != nil {
		return content.Snapshot{}, collaberrors.NewInvalidEntity("contenttype.jsonschema", "Apply", "operation", op, "data")
	}

	if err := c.validateDocument(op.Schema, merged); err != nil {
		return content.Snapshot{}, err
	}

	return content.Snapshot{
		Type:    op.Type,
		ID:      op.ID,
		Version: op.Version,
		Schema:  op.Schema,
		Data:    merged,
		Meta:    prior.Meta,
	}, nil
}

func (c *ContentType) validateDocument(schemaHash string, doc json.RawMessage) error {
	c.mu.RLock()
	loader, ok := c.schemas[schemaHash]
	c.mu.RUnlock()
	if !ok {
		return collaberrors.NewNotFound("contenttype.jsonschema", "Apply", "schema", schemaHash)
	}

	result, err := gojsonschema.Validate(loader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("jsonschema: validate document: %w", err)
	}
	if !result.Valid() {
		return collaberrors.NewInvalidEntity("contenttype.jsonschema", "Apply", "document", doc, result.Errors()[0].Field())
	}
	return nil
}

// mergePatch applies an RFC 7396 JSON merge patch: patch is merged onto
// target, where a null value in patch deletes the corresponding key.
func mergePatch(target, patch json.RawMessage) (json.RawMessage, error) {
	if len(patch) == 0 {
		return target, nil
	}

	var patchVal any
	if err := json.Unmarshal(patch, &patchVal); err != nil {
		return nil, err
	}

	patchObj, isObj := patchVal.(map[string]any)
	if !isObj {
		// a non-object patch replaces target wholesale
		return patch, nil
	}

	var targetObj map[string]any
	if len(target) > 0 {
		var targetVal any
		if err := json.Unmarshal(target, &targetVal); err == nil {
			if m, ok := targetVal.(map[string]any); ok {
				targetObj = m
			}
		}
	}
	if targetObj == nil {
		targetObj = make(map[string]any)
	}

	for k, v := range patchObj {
		if v == nil {
			delete(targetObj, k)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			nestedBytes, _ := json.Marshal(nested)
			var existingBytes json.RawMessage
			if existing, ok := targetObj[k]; ok {
				existingBytes, _ = json.Marshal(existing)
			}
			merged, err := mergePatch(existingBytes, nestedBytes)
			if err != nil {
				return nil, err
			}
			var mergedVal any
			if err := json.Unmarshal(merged, &mergedVal); err != nil {
				return nil, err
			}
			targetObj[k] = mergedVal
			continue
		}
		targetObj[k] = v
	}

	return json.Marshal(targetObj)
}
