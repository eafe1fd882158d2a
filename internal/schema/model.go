// Package schema holds the static description of the form-definition tables:
// columns, types, nullability, uniqueness, and foreign keys. The model is an
// immutable input to every validation run; the engine never infers it.
package schema

import (
	"fmt"
	"sort"

	"formsentry/pkg/domain"
)

// Kind enumerates the column value types the engine understands.
type Kind string

const (
	// KindString covers identifiers, slugs, labels, and free text.
	KindString Kind = "string"
	// KindInt covers positions and other whole numbers.
	KindInt Kind = "int"
	// KindBool covers flags such as required and active.
	KindBool Kind = "bool"
)

// Column describes one table column.
type Column struct {
	Name     string `yaml:"name"`
	Kind     Kind   `yaml:"kind"`
	Required bool   `yaml:"required"`
}

// ForeignKey links a column to the parent table it references.
type ForeignKey struct {
	Column string       `yaml:"column"`
	Parent domain.Table `yaml:"parent"`
}

// Unique names a set of columns that must be unique together across the
// table. A single-column key models global uniqueness (forms.slug); a
// two-column key models per-parent uniqueness (option value within a set).
type Unique struct {
	Columns []string `yaml:"columns"`
}

// Table describes one entity table.
type Table struct {
	Name        domain.Table `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	Uniques     []Unique     `yaml:"uniques"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys"`
}

// Column returns the named column definition.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ForeignKey returns the foreign-key definition for a column, when any.
func (t Table) ForeignKey(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Model is the full schema description, lookup only.
type Model struct {
	Tables []Table `yaml:"tables"`

	byName map[domain.Table]*Table
	order  []domain.Table
}

// Table returns the named table definition.
func (m *Model) Table(name domain.Table) (*Table, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// InsertOrder returns the tables sorted parents-first along the foreign-key
// graph; deletes run in the reverse order.
func (m *Model) InsertOrder() []domain.Table {
	out := make([]domain.Table, len(m.order))
	copy(out, m.order)
	return out
}

// DeleteOrder returns the tables children-first.
func (m *Model) DeleteOrder() []domain.Table {
	order := m.InsertOrder()
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// finalize indexes the tables and computes the dependency order.
func (m *Model) finalize() error {
	m.byName = make(map[domain.Table]*Table, len(m.Tables))
	for i := range m.Tables {
		t := &m.Tables[i]
		if _, dup := m.byName[t.Name]; dup {
			return fmt.Errorf("schema: duplicate table %s", t.Name)
		}
		if _, ok := t.Column(domain.IDColumn); !ok {
			return fmt.Errorf("schema: table %s lacks an id column", t.Name)
		}
		for _, fk := range t.ForeignKeys {
			if _, ok := t.Column(fk.Column); !ok {
				return fmt.Errorf("schema: table %s foreign key on unknown column %s", t.Name, fk.Column)
			}
		}
		m.byName[t.Name] = t
	}
	for _, t := range m.Tables {
		for _, fk := range t.ForeignKeys {
			if _, ok := m.byName[fk.Parent]; !ok {
				return fmt.Errorf("schema: table %s references unknown parent %s", t.Name, fk.Parent)
			}
		}
	}
	order, err := m.topoSort()
	if err != nil {
		return err
	}
	m.order = order
	return nil
}

// topoSort orders tables parents-first. Ties resolve lexically so the order
// is stable across runs.
func (m *Model) topoSort() ([]domain.Table, error) {
	indegree := make(map[domain.Table]int, len(m.Tables))
	children := make(map[domain.Table][]domain.Table, len(m.Tables))
	for _, t := range m.Tables {
		indegree[t.Name] += 0
		seen := map[domain.Table]bool{}
		for _, fk := range t.ForeignKeys {
			if fk.Parent == t.Name || seen[fk.Parent] {
				continue
			}
			seen[fk.Parent] = true
			indegree[t.Name]++
			children[fk.Parent] = append(children[fk.Parent], t.Name)
		}
	}

	var ready []domain.Table
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	var order []domain.Table
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	if len(order) != len(m.Tables) {
		return nil, fmt.Errorf("schema: foreign-key cycle detected")
	}
	return order, nil
}

// CheckValue reports whether a value fits the column kind. Nil is acceptable
// here; required-column enforcement happens separately. Integral floats are
// accepted for int columns because JSON decoding yields float64.
func CheckValue(c Column, v any) error {
	if v == nil {
		return nil
	}
	switch c.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("column %s expects string, got %T", c.Name, v)
		}
	case KindInt:
		switch n := v.(type) {
		case int, int32, int64:
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("column %s expects integer, got %v", c.Name, n)
			}
		default:
			return fmt.Errorf("column %s expects integer, got %T", c.Name, v)
		}
	case KindBool:
		switch v.(type) {
		case bool:
		case int, int64, float64:
			// sqlite stores booleans as 0/1
		default:
			return fmt.Errorf("column %s expects bool, got %T", c.Name, v)
		}
	default:
		return fmt.Errorf("column %s has unknown kind %s", c.Name, c.Kind)
	}
	return nil
}
