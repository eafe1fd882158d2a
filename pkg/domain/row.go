package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// IDColumn is the primary-key column shared by all entity tables.
const IDColumn = "id"

// Row is a generic record: column name to value. Updates carry only the
// columns they touch, so rows are not required to be complete outside of
// insert bundles.
type Row map[string]any

// Clone returns a shallow-value copy of the row. Column values are scalars
// (string, number, bool, nil) per the schema model, so a per-key copy is a
// full copy.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the row's identifier reference, when present.
func (r Row) ID() (Ref, bool) {
	v, ok := r[IDColumn]
	if !ok {
		return Ref{}, false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return Ref{}, false
	}
	return ParseRef(s), true
}

// Equal reports whether two rows hold identical column sets and values.
// Numeric values are compared through their canonical JSON form so that
// int64/float64 decoding differences do not register as changes.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	a, err := r.CanonicalJSON()
	if err != nil {
		return false
	}
	b, err := other.CanonicalJSON()
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

// CanonicalJSON serializes the row with sorted keys, producing a stable byte
// form suitable for digests and byte-identical comparisons.
func (r Row) CanonicalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(normalizeValue(r[k]))
		if err != nil {
			return nil, fmt.Errorf("marshal column %s: %w", k, err)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// normalizeValue collapses the integer representations produced by different
// decoders (json float64, sqlite int64, yaml int) into one canonical form.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case float32:
		return normalizeValue(float64(n))
	default:
		return v
	}
}

// State is the full contents of the five entity tables keyed by table and
// row identifier. It is the unit the sandbox provisioner copies and the
// validator inspects.
type State map[Table]map[string]Row

// NewState returns a state with empty buckets for every entity table.
func NewState() State {
	return State{
		TableForms:       map[string]Row{},
		TableFields:      map[string]Row{},
		TableOptionSets:  map[string]Row{},
		TableOptionItems: map[string]Row{},
		TableLogicRules:  map[string]Row{},
	}
}

// Clone deep-copies the state; the copy shares no mutable structure with the
// receiver.
func (s State) Clone() State {
	out := make(State, len(s))
	for table, rows := range s {
		bucket := make(map[string]Row, len(rows))
		for id, row := range rows {
			bucket[id] = row.Clone()
		}
		out[table] = bucket
	}
	return out
}

// Rows returns the bucket for a table, which may be nil for unknown tables.
func (s State) Rows(table Table) map[string]Row {
	return s[table]
}

// Digest computes a SHA-256 digest over the canonical JSON form of the whole
// state. Two states with identical contents always share a digest.
func (s State) Digest() (string, error) {
	tables := make([]string, 0, len(s))
	for t := range s {
		tables = append(tables, string(t))
	}
	sort.Strings(tables)

	h := sha256.New()
	for _, t := range tables {
		rows := s[Table(t)]
		ids := make([]string, 0, len(rows))
		for id := range rows {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		h.Write([]byte(t))
		for _, id := range ids {
			b, err := rows[id].CanonicalJSON()
			if err != nil {
				return "", fmt.Errorf("digest %s/%s: %w", t, id, err)
			}
			h.Write([]byte(id))
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
