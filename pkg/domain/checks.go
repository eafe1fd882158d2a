package domain

import "context"

// CheckView provides read-only access to the frozen post-apply sandbox state
// for check evaluation.
type CheckView interface {
	// Rows returns every row of a table keyed by identifier. Callers must
	// not mutate the returned maps.
	Rows(table Table) map[string]Row
	// Find retrieves a single row by identifier.
	Find(table Table, id string) (Row, bool)
}

// Check defines one validation executed against the post-apply sandbox and
// the mutation log. Checks accumulate violations; they never short-circuit
// and never mutate the sandbox.
type Check interface {
	Name() string
	Kind() CheckKind
	Evaluate(ctx context.Context, view CheckView, log MutationLog) (Result, error)
}
