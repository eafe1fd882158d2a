package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// structuralCheck verifies that every mutated row is complete and well typed
// and that the model's uniqueness constraints hold across the whole
// post-apply state.
type structuralCheck struct {
	model *schema.Model
}

func (c *structuralCheck) Name() string           { return "structural-integrity" }
func (c *structuralCheck) Kind() domain.CheckKind { return domain.CheckStructural }

func (c *structuralCheck) Evaluate(ctx context.Context, view domain.CheckView, log domain.MutationLog) (domain.Result, error) {
	var res domain.Result

	// Rows the changeset wrote must carry every required column with a
	// compatible value. Untouched rows are the source's responsibility.
	for _, m := range log {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}
		if m.After == nil {
			continue
		}
		def, ok := c.model.Table(m.Table)
		if !ok {
			continue
		}
		for _, col := range def.Columns {
			v, present := m.After[col.Name]
			if col.Required && (!present || v == nil || v == "") {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: m.Table, Op: m.Op, ID: m.ID,
					Message: fmt.Sprintf("required column %s is empty", col.Name),
				})
				continue
			}
			if present {
				if err := schema.CheckValue(col, v); err != nil {
					res.Violations = append(res.Violations, domain.Violation{
						Severity: domain.SeverityFatal, Check: c.Kind(),
						Table: m.Table, Op: m.Op, ID: m.ID,
						Message: err.Error(),
					})
				}
			}
		}
	}

	for _, table := range c.model.InsertOrder() {
		def, _ := c.model.Table(table)
		for _, u := range def.Uniques {
			res.Merge(c.checkUnique(view, table, u))
		}
	}
	return res, nil
}

// checkUnique groups rows by their unique-key tuple and reports each group
// holding more than one row. Rows missing a key component are skipped; the
// required-column check covers those.
func (c *structuralCheck) checkUnique(view domain.CheckView, table domain.Table, u schema.Unique) domain.Result {
	groups := map[string][]string{}
	for id, row := range view.Rows(table) {
		parts := make([]string, 0, len(u.Columns))
		complete := true
		for _, col := range u.Columns {
			v, ok := row[col]
			if !ok || v == nil {
				complete = false
				break
			}
			parts = append(parts, fmt.Sprintf("%v", v))
		}
		if !complete {
			continue
		}
		key := strings.Join(parts, "\x00")
		groups[key] = append(groups[key], id)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		if len(groups[k]) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var res domain.Result
	for _, k := range keys {
		ids := groups[k]
		sort.Strings(ids)
		res.Violations = append(res.Violations, domain.Violation{
			Severity: domain.SeverityFatal, Check: c.Kind(),
			Table: table, ID: ids[0],
			Message: fmt.Sprintf("duplicate %s = %q shared by %s",
				strings.Join(u.Columns, "+"), strings.ReplaceAll(k, "\x00", "/"), strings.Join(ids, ", ")),
		})
	}
	return res
}
