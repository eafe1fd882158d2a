package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// conflictingRulesCheck flags logic rules that watch the same condition and
// pull the same target field in opposite directions: one rule requires it
// while another hides it. Editors can save such forms, but at runtime the
// combination deadlocks the field, so it surfaces as an advisory.
type conflictingRulesCheck struct{}

func (c *conflictingRulesCheck) Name() string           { return "conflicting-logic-rules" }
func (c *conflictingRulesCheck) Kind() domain.CheckKind { return domain.CheckBusiness }

func (c *conflictingRulesCheck) Evaluate(ctx context.Context, view domain.CheckView, _ domain.MutationLog) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	type group struct {
		require []string
		hide    []string
	}
	groups := map[string]*group{}
	for id, row := range view.Rows(domain.TableLogicRules) {
		action, _ := row["action"].(string)
		if action != "require" && action != "hide" {
			continue
		}
		key := fmt.Sprintf("%v\x00%v\x00%v\x00%v",
			row["target_field_id"], row["field_id"], row["operator"], row["value"])
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		if action == "require" {
			g.require = append(g.require, id)
		} else {
			g.hide = append(g.hide, id)
		}
	}

	keys := make([]string, 0, len(groups))
	for k, g := range groups {
		if len(g.require) > 0 && len(g.hide) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var res domain.Result
	for _, k := range keys {
		g := groups[k]
		sort.Strings(g.require)
		sort.Strings(g.hide)
		res.Violations = append(res.Violations, domain.Violation{
			Severity: domain.SeverityWarning, Check: c.Kind(),
			Table: domain.TableLogicRules, ID: g.require[0],
			Message: fmt.Sprintf("rule requires a field that rule %s hides under the same condition",
				strings.Join(g.hide, ", ")),
		})
	}
	return res, nil
}

// activeOptionCheck flags required select and multiselect fields whose
// option set no longer offers any active option, which would make the field
// impossible to fill in.
type activeOptionCheck struct{}

func (c *activeOptionCheck) Name() string           { return "required-field-active-options" }
func (c *activeOptionCheck) Kind() domain.CheckKind { return domain.CheckBusiness }

func (c *activeOptionCheck) Evaluate(ctx context.Context, view domain.CheckView, _ domain.MutationLog) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	activeCounts := map[string]int{}
	for _, item := range view.Rows(domain.TableOptionItems) {
		setID, ok := foreignKeyValue(item, "option_set_id")
		if !ok {
			continue
		}
		if truthy(item["active"], true) {
			activeCounts[setID]++
		}
	}

	var res domain.Result
	fields := view.Rows(domain.TableFields)
	for _, id := range sortedIDs(fields) {
		row := fields[id]
		fieldType, _ := row["type"].(string)
		if !optionBacked(fieldType) || !truthy(row["required"], false) {
			continue
		}
		setID, ok := foreignKeyValue(row, "option_set_id")
		if !ok {
			continue
		}
		if activeCounts[setID] == 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Severity: domain.SeverityWarning, Check: c.Kind(),
				Table: domain.TableFields, ID: id,
				Message: fmt.Sprintf("required %s field has no active option in set %s", fieldType, setID),
			})
		}
	}
	return res, nil
}

// cascadeCheck walks the dependency graph below each deleted form and
// enumerates surviving dependents. Deleting a form is expected to cascade;
// anything left behind is advisory here and the referential check flags the
// resulting orphans as fatal on its own.
type cascadeCheck struct {
	model *schema.Model
}

func (c *cascadeCheck) Name() string           { return "form-delete-cascade" }
func (c *cascadeCheck) Kind() domain.CheckKind { return domain.CheckBusiness }

func (c *cascadeCheck) Evaluate(ctx context.Context, view domain.CheckView, log domain.MutationLog) (domain.Result, error) {
	deleted := map[string]bool{}
	for _, m := range log {
		if m.Table == domain.TableForms && m.Op == domain.OpDelete {
			deleted[m.ID] = true
		}
	}
	if len(deleted) == 0 {
		return domain.Result{}, nil
	}

	// Breadth-first over the foreign-key graph: a surviving child of a
	// deleted form is itself a missing parent for its own children.
	gone := map[domain.Table]map[string]bool{domain.TableForms: deleted}
	var res domain.Result
	for {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}
		grew := false
		for _, table := range c.model.InsertOrder() {
			def, _ := c.model.Table(table)
			for _, fk := range def.ForeignKeys {
				parents := gone[fk.Parent]
				if len(parents) == 0 {
					continue
				}
				rows := view.Rows(table)
				for _, id := range sortedIDs(rows) {
					if gone[table][id] {
						continue
					}
					parent, ok := foreignKeyValue(rows[id], fk.Column)
					if !ok || !parents[parent] {
						continue
					}
					if gone[table] == nil {
						gone[table] = map[string]bool{}
					}
					gone[table][id] = true
					grew = true
					res.Violations = append(res.Violations, domain.Violation{
						Severity: domain.SeverityWarning, Check: c.Kind(),
						Table: table, ID: id,
						Message: fmt.Sprintf("survives deletion of %s %q via %s", fk.Parent, parent, fk.Column),
					})
				}
			}
		}
		if !grew {
			return res, nil
		}
	}
}

func optionBacked(fieldType string) bool {
	for _, t := range schema.OptionBackedFieldTypes {
		if fieldType == t {
			return true
		}
	}
	return false
}

// truthy folds the boolean encodings the drivers produce (bool, 0/1 ints)
// into one answer; def covers absent values.
func truthy(v any, def bool) bool {
	switch b := v.(type) {
	case nil:
		return def
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	default:
		return def
	}
}
