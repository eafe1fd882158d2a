package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Operations bundles the insert, update, and delete records proposed for one
// table. A given identifier appears in at most one bundle; the resolver
// rejects changesets that break the invariant.
type Operations struct {
	Insert []Row `json:"insert,omitempty"`
	Update []Row `json:"update,omitempty"`
	Delete []Row `json:"delete,omitempty"`
}

// IsEmpty reports whether the bundle carries no operations.
func (o *Operations) IsEmpty() bool {
	return o == nil || (len(o.Insert) == 0 && len(o.Update) == 0 && len(o.Delete) == 0)
}

// Len returns the total operation count across all three bundles.
func (o *Operations) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Insert) + len(o.Update) + len(o.Delete)
}

// ChangeSet maps each targeted entity table to its operation bundle. It is
// delivered by the change-synthesis collaborator as a single structured
// document; the engine never sees partial changesets.
type ChangeSet map[Table]*Operations

// ParseChangeSet decodes the wire document form of a changeset.
func ParseChangeSet(data []byte) (ChangeSet, error) {
	var cs ChangeSet
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decode changeset: %w", err)
	}
	return cs, nil
}

// ops returns the bundle for a table, allocating it on first use.
func (cs ChangeSet) ops(table Table) *Operations {
	if cs[table] == nil {
		cs[table] = &Operations{}
	}
	return cs[table]
}

// AddInsert appends an insert record for the table.
func (cs ChangeSet) AddInsert(table Table, row Row) {
	o := cs.ops(table)
	o.Insert = append(o.Insert, row)
}

// AddUpdate appends an update record for the table.
func (cs ChangeSet) AddUpdate(table Table, row Row) {
	o := cs.ops(table)
	o.Update = append(o.Update, row)
}

// AddDelete appends a delete record for the table.
func (cs ChangeSet) AddDelete(table Table, row Row) {
	o := cs.ops(table)
	o.Delete = append(o.Delete, row)
}

// Tables returns the targeted tables in lexical order so iteration over a
// changeset is deterministic.
func (cs ChangeSet) Tables() []Table {
	out := make([]Table, 0, len(cs))
	for t, o := range cs {
		if o.IsEmpty() {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the total operation count across all tables.
func (cs ChangeSet) Len() int {
	n := 0
	for _, o := range cs {
		n += o.Len()
	}
	return n
}

// Clone deep-copies the changeset so resolution can rewrite rows without
// mutating the caller's document.
func (cs ChangeSet) Clone() ChangeSet {
	out := make(ChangeSet, len(cs))
	for table, o := range cs {
		if o == nil {
			continue
		}
		out[table] = &Operations{
			Insert: cloneRows(o.Insert),
			Update: cloneRows(o.Update),
			Delete: cloneRows(o.Delete),
		}
	}
	return out
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// Substitutions maps placeholder tokens (without the sentinel prefix) to the
// concrete identifiers generated for them during resolution. The map is
// returned to the caller so final identifiers can be reported back upstream.
type Substitutions map[string]string
