package resolver

import (
	"errors"
	"testing"

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

func seedState() domain.State {
	state := domain.NewState()
	state[domain.TableForms]["form-1"] = domain.Row{"id": "form-1", "slug": "intake", "title": "Intake"}
	state[domain.TableFields]["field-1"] = domain.Row{
		"id": "field-1", "form_id": "form-1", "code": "age", "label": "Age",
		"type": "number", "position": int64(1), "required": true,
	}
	return state
}

func TestResolveGeneratesConcreteIdentifiers(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$os_colors", "name": "Colors", "form_id": "form-1"})
	cs.AddInsert(domain.TableOptionItems, domain.Row{
		"id": "$oi_red", "option_set_id": "$os_colors", "value": "red", "label": "Red",
		"position": int64(1), "active": true,
	})

	res, err := Resolve(model, seedState(), cs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	setID, ok := res.Substitutions["os_colors"]
	if !ok || setID == "" {
		t.Fatalf("missing substitution for os_colors: %v", res.Substitutions)
	}
	itemID, ok := res.Substitutions["oi_red"]
	if !ok || itemID == "" || itemID == setID {
		t.Fatalf("bad substitution for oi_red: %q", itemID)
	}

	setRow := res.ChangeSet[domain.TableOptionSets].Insert[0]
	if setRow["id"] != setID {
		t.Fatalf("insert id not rewritten: %v", setRow["id"])
	}
	itemRow := res.ChangeSet[domain.TableOptionItems].Insert[0]
	if itemRow["option_set_id"] != setID {
		t.Fatalf("foreign key not rewritten: %v", itemRow["option_set_id"])
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	model := schema.Builtin()
	build := func() domain.ChangeSet {
		cs := domain.ChangeSet{}
		cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$os_a", "name": "A", "form_id": "form-1"})
		return cs
	}

	first, err := Resolve(model, seedState(), build())
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := Resolve(model, seedState(), build())
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first.Substitutions["os_a"] != second.Substitutions["os_a"] {
		t.Fatalf("identifiers differ across runs: %q vs %q",
			first.Substitutions["os_a"], second.Substitutions["os_a"])
	}

	// A different existing identifier set must shift the generated value.
	other := seedState()
	other[domain.TableForms]["form-2"] = domain.Row{"id": "form-2", "slug": "extra", "title": "Extra"}
	third, err := Resolve(model, other, build())
	if err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if third.Substitutions["os_a"] == first.Substitutions["os_a"] {
		t.Fatalf("identifier ignored the existing identifier set")
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$os_a", "name": "A", "form_id": "form-1"})

	if _, err := Resolve(model, seedState(), cs); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := cs[domain.TableOptionSets].Insert[0]["id"]; got != "$os_a" {
		t.Fatalf("input changeset mutated: %v", got)
	}
}

func TestResolvePlaceholderInUpdateOrDelete(t *testing.T) {
	model := schema.Builtin()
	for _, op := range []string{"update", "delete"} {
		cs := domain.ChangeSet{}
		row := domain.Row{"id": "$fld_new", "label": "New"}
		if op == "update" {
			cs.AddUpdate(domain.TableFields, row)
		} else {
			cs.AddDelete(domain.TableFields, row)
		}
		_, err := Resolve(model, seedState(), cs)
		if !errors.Is(err, domain.ErrInvalidReference) {
			t.Fatalf("%s: want ErrInvalidReference, got %v", op, err)
		}
	}
}

func TestResolveUnresolvedForeignKeyPlaceholder(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionItems, domain.Row{
		"id": "$oi_x", "option_set_id": "$os_missing", "value": "x", "label": "X",
		"position": int64(1),
	})

	_, err := Resolve(model, seedState(), cs)
	if !errors.Is(err, domain.ErrUnresolvedPlaceholder) {
		t.Fatalf("want ErrUnresolvedPlaceholder, got %v", err)
	}
}

func TestResolveDuplicatePlaceholderDefinition(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$dup", "name": "A"})
	cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$dup", "name": "B"})

	_, err := Resolve(model, seedState(), cs)
	if !errors.Is(err, domain.ErrIdentifierCollision) {
		t.Fatalf("want ErrIdentifierCollision, got %v", err)
	}
}

func TestResolveIdentifierInTwoBundles(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddUpdate(domain.TableFields, domain.Row{"id": "field-1", "label": "Age (years)"})
	cs.AddDelete(domain.TableFields, domain.Row{"id": "field-1"})

	_, err := Resolve(model, seedState(), cs)
	if !errors.Is(err, domain.ErrIdentifierCollision) {
		t.Fatalf("want ErrIdentifierCollision, got %v", err)
	}
}

func TestResolveMissingIdentifier(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableForms, domain.Row{"slug": "orphan", "title": "Orphan"})

	_, err := Resolve(model, seedState(), cs)
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("want ErrInvalidReference, got %v", err)
	}
}

func TestResolveLeavesNonForeignKeyValuesAlone(t *testing.T) {
	model := schema.Builtin()
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableForms, domain.Row{"id": "form-9", "slug": "pricing", "title": "$19 plan"})

	res, err := Resolve(model, seedState(), cs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := res.ChangeSet[domain.TableForms].Insert[0]["title"]; got != "$19 plan" {
		t.Fatalf("non-reference value rewritten: %v", got)
	}
}
