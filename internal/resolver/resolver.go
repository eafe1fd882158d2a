// Package resolver rewrites a changeset's placeholder identifiers into
// concrete values before any sandbox exists. Resolution is a pure function
// of the changeset and the existing identifier set: the same inputs always
// produce the same output, which keeps validation runs reproducible.
package resolver

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// Resolution carries the rewritten changeset and the placeholder
// substitution map reported back to the caller.
type Resolution struct {
	ChangeSet     domain.ChangeSet
	Substitutions domain.Substitutions
}

// Resolve validates and rewrites every placeholder reference in the
// changeset. It fails with a ResolutionError wrapping ErrInvalidReference,
// ErrUnresolvedPlaceholder, or ErrIdentifierCollision; on success every
// identifier in the returned changeset is concrete.
func Resolve(model *schema.Model, existing domain.State, cs domain.ChangeSet) (Resolution, error) {
	out := cs.Clone()
	seed := existingDigest(existing)
	subs := domain.Substitutions{}

	// Inserts define placeholders; generate a concrete identifier for each
	// and reject duplicate definitions or identifiers already present in a
	// bundle of the same table.
	seen := map[domain.Table]map[string]bool{}
	mark := func(table domain.Table, id string) error {
		if seen[table] == nil {
			seen[table] = map[string]bool{}
		}
		if seen[table][id] {
			return &domain.ResolutionError{Kind: domain.ErrIdentifierCollision, Table: table, Ref: id}
		}
		seen[table][id] = true
		return nil
	}

	for _, table := range out.Tables() {
		ops := out[table]
		for _, row := range ops.Insert {
			ref, ok := row.ID()
			if !ok {
				return Resolution{}, &domain.ResolutionError{Kind: domain.ErrInvalidReference, Table: table, Ref: "<missing id>"}
			}
			id, concrete := ref.Concrete()
			if !concrete {
				token, _ := ref.Token()
				if _, dup := subs[token]; dup {
					return Resolution{}, &domain.ResolutionError{Kind: domain.ErrIdentifierCollision, Table: table, Ref: ref.String()}
				}
				id = generateID(table, token, seed)
				if rowExists(existing, table, id) {
					return Resolution{}, &domain.ResolutionError{Kind: domain.ErrIdentifierCollision, Table: table, Ref: ref.String()}
				}
				for _, prior := range subs {
					if prior == id {
						return Resolution{}, &domain.ResolutionError{Kind: domain.ErrIdentifierCollision, Table: table, Ref: ref.String()}
					}
				}
				subs[token] = id
				row[domain.IDColumn] = id
			}
			if err := mark(table, id); err != nil {
				return Resolution{}, err
			}
		}
	}

	// Updates and deletes must address existing rows; a placeholder there is
	// always malformed, and one identifier may appear in at most one bundle.
	for _, table := range out.Tables() {
		ops := out[table]
		for _, bundle := range [][]domain.Row{ops.Update, ops.Delete} {
			for _, row := range bundle {
				ref, ok := row.ID()
				if !ok {
					return Resolution{}, &domain.ResolutionError{Kind: domain.ErrInvalidReference, Table: table, Ref: "<missing id>"}
				}
				if ref.IsPlaceholder() {
					return Resolution{}, &domain.ResolutionError{Kind: domain.ErrInvalidReference, Table: table, Ref: ref.String()}
				}
				id, _ := ref.Concrete()
				if err := mark(table, id); err != nil {
					return Resolution{}, err
				}
			}
		}
	}

	// Rewrite foreign-key columns. Only columns the model declares as
	// foreign keys are touched; any other value that happens to start with
	// the sentinel stays as-is.
	for _, table := range out.Tables() {
		def, ok := model.Table(table)
		if !ok {
			continue // unknown tables fail later, at apply time
		}
		ops := out[table]
		for _, bundle := range [][]domain.Row{ops.Insert, ops.Update, ops.Delete} {
			for _, row := range bundle {
				if err := rewriteForeignKeys(def, table, row, subs); err != nil {
					return Resolution{}, err
				}
			}
		}
	}

	return Resolution{ChangeSet: out, Substitutions: subs}, nil
}

func rewriteForeignKeys(def *schema.Table, table domain.Table, row domain.Row, subs domain.Substitutions) error {
	for _, fk := range def.ForeignKeys {
		v, ok := row[fk.Column]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		ref := domain.ParseRef(s)
		token, placeholder := ref.Token()
		if !placeholder {
			continue
		}
		id, defined := subs[token]
		if !defined {
			return &domain.ResolutionError{Kind: domain.ErrUnresolvedPlaceholder, Table: table, Ref: ref.String()}
		}
		row[fk.Column] = id
	}
	return nil
}

func rowExists(state domain.State, table domain.Table, id string) bool {
	rows := state.Rows(table)
	if rows == nil {
		return false
	}
	_, ok := rows[id]
	return ok
}

// existingDigest folds the complete identifier inventory of the prior state
// into one hash so generated identifiers are a function of it.
func existingDigest(state domain.State) [32]byte {
	var keys []string
	for table, rows := range state {
		for id := range rows {
			keys = append(keys, fmt.Sprintf("%s/%s", table, id))
		}
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// generateID derives a ULID deterministically from the placeholder token,
// its table, and the digest of the existing identifier set.
func generateID(table domain.Table, token string, seed [32]byte) string {
	h := sha256.New()
	h.Write(seed[:])
	h.Write([]byte(table))
	h.Write([]byte{0})
	h.Write([]byte(token))
	sum := h.Sum(nil)

	ms := binary.BigEndian.Uint64(append(make([]byte, 2), sum[:6]...)) & ulid.MaxTime()
	return ulid.MustNew(ms, bytes.NewReader(sum[6:])).String()
}
