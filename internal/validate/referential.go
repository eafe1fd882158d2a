package validate

import (
	"context"
	"fmt"
	"sort"

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// referentialCheck verifies that every populated foreign-key column in the
// post-apply state points at an existing parent row. Orphans are flagged on
// the child table.
type referentialCheck struct {
	model *schema.Model
}

func (c *referentialCheck) Name() string           { return "referential-integrity" }
func (c *referentialCheck) Kind() domain.CheckKind { return domain.CheckReferential }

func (c *referentialCheck) Evaluate(ctx context.Context, view domain.CheckView, _ domain.MutationLog) (domain.Result, error) {
	var res domain.Result
	for _, table := range c.model.InsertOrder() {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}
		def, _ := c.model.Table(table)
		if len(def.ForeignKeys) == 0 {
			continue
		}
		for _, id := range sortedIDs(view.Rows(table)) {
			row := view.Rows(table)[id]
			for _, fk := range def.ForeignKeys {
				parent, ok := foreignKeyValue(row, fk.Column)
				if !ok {
					continue
				}
				if _, exists := view.Find(fk.Parent, parent); !exists {
					res.Violations = append(res.Violations, domain.Violation{
						Severity: domain.SeverityFatal, Check: c.Kind(),
						Table: table, ID: id,
						Message: fmt.Sprintf("%s references missing %s %q", fk.Column, fk.Parent, parent),
					})
				}
			}
		}
	}
	return res, nil
}

// foreignKeyValue extracts a populated foreign-key value; nil and empty
// values mean the reference is intentionally unset.
func foreignKeyValue(row domain.Row, column string) (string, bool) {
	v, ok := row[column]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func sortedIDs(rows map[string]domain.Row) []string {
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
