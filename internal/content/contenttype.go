package content

// ContentType is the pluggable operation-semantics interface the Backend
// consumes, per spec.md §4.4. Implementations own their own notion of
// "known schemas" (HasSchema/RegisterSchema) and the fold step (Apply).
type ContentType interface {
	// ValidateSchema checks structural validity and returns the
	// (possibly normalised) schema, or an *errors.InvalidEntity.
	ValidateSchema(schema Schema) (Schema, error)

	// HasSchema reports whether this content type has already accepted
	// a schema with the given hash via RegisterSchema.
	HasSchema(hash string) bool

	// RegisterSchema records a validated schema as known to this
	// content type. Idempotent.
	RegisterSchema(schema Schema) error

	// Apply folds op onto priorSnapshot (or the empty snapshot) and
	// returns the resulting snapshot.
	//
	// Required preconditions (callers — typically internal/cache — must
	// enforce the version/type/id checks themselves before calling, but
	// well-behaved implementations should still reject a violation):
	// op.Version == priorSnapshot.Version+1 (or 1 against the empty
	// snapshot), op.Type == priorSnapshot.Type, op.ID == priorSnapshot.ID.
	//
	// If op.Schema differs from priorSnapshot.Schema, implementations
	// must NOT invoke their transform: Data is carried over unchanged and
	// only Schema advances. Callers must pass an empty op.Data in that
	// case (spec.md §9, "Snapshot folding across schema changes").
	Apply(prior Snapshot, op Operation) (Snapshot, error)
}

// ApplySchemaChangeCarryOver implements the schema-change carry-over rule
// shared by every ContentType: when op.Schema != prior.Schema, the new
// snapshot keeps prior.Data and only advances Schema to op.Schema. It
// returns ok=false when no schema change occurred, so the caller's own
// Apply can fall through to its normal transform.
func ApplySchemaChangeCarryOver(prior Snapshot, op Operation) (snap Snapshot, ok bool) {
	if op.Schema == prior.Schema {
		return Snapshot{}, false
	}
	return Snapshot{
		Type:    op.Type,
		ID:      op.ID,
		Version: op.Version,
		Schema:  op.Schema,
		Data:    prior.Data,
		Meta:    prior.Meta,
	}, true
}
