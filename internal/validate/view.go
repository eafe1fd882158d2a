package validate

import "formsentry/pkg/domain"

// View adapts a frozen state to the read-only interface checks evaluate
// against. Checks receive the post-apply sandbox contents through it.
type View struct {
	state domain.State
}

// NewView wraps a state. The caller must not mutate the state while checks
// run.
func NewView(state domain.State) *View {
	return &View{state: state}
}

// Rows returns every row of a table keyed by identifier.
func (v *View) Rows(table domain.Table) map[string]domain.Row {
	return v.state.Rows(table)
}

// Find retrieves a single row by identifier.
func (v *View) Find(table domain.Table, id string) (domain.Row, bool) {
	rows := v.state.Rows(table)
	if rows == nil {
		return nil, false
	}
	row, ok := rows[id]
	return row, ok
}

var _ domain.CheckView = (*View)(nil)
