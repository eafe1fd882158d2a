package domain

// Mutation records one row actually inserted, updated, or deleted by the
// applier. Before/After carry the full row images inside the sandbox; a nil
// Before marks an insert, a nil After marks a delete.
type Mutation struct {
	Seq    int    `json:"seq"`
	Table  Table  `json:"table"`
	Op     Op     `json:"op"`
	ID     string `json:"id"`
	Before Row    `json:"before,omitempty"`
	After  Row    `json:"after,omitempty"`
}

// MutationLog is the ordered record of every mutation a successful apply
// performed, consumed downstream by the impact check.
type MutationLog []Mutation

// ForTable returns the log entries touching the given table, preserving
// apply order.
func (l MutationLog) ForTable(table Table) []Mutation {
	var out []Mutation
	for _, m := range l {
		if m.Table == table {
			out = append(out, m)
		}
	}
	return out
}

// Tables returns the set of tables the log touches.
func (l MutationLog) Tables() map[Table]struct{} {
	out := make(map[Table]struct{})
	for _, m := range l {
		out[m.Table] = struct{}{}
	}
	return out
}
