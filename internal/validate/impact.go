package validate

import (
	"context"
	"fmt"

	"formsentry/pkg/domain"
)

// impactCheck proves the apply touched exactly what the changeset asked for:
// rows outside the mutation log are byte-identical to the pre-apply
// snapshot, and every logged mutation is reflected in the final state
// exactly once. It is built per run because it needs the pre-apply state.
type impactCheck struct {
	pre     domain.State
	targets map[domain.Table]struct{}
}

// NewImpactCheck builds the impact check for one run. pre is the sandbox
// state before apply; targets are the tables the changeset addressed.
func NewImpactCheck(pre domain.State, targets map[domain.Table]struct{}) domain.Check {
	return &impactCheck{pre: pre, targets: targets}
}

func (c *impactCheck) Name() string           { return "impact-isolation" }
func (c *impactCheck) Kind() domain.CheckKind { return domain.CheckImpact }

func (c *impactCheck) Evaluate(ctx context.Context, view domain.CheckView, log domain.MutationLog) (domain.Result, error) {
	var res domain.Result

	mutated := map[domain.Table]map[string]domain.Mutation{}
	for _, m := range log {
		if mutated[m.Table] == nil {
			mutated[m.Table] = map[string]domain.Mutation{}
		}
		if _, dup := mutated[m.Table][m.ID]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Severity: domain.SeverityFatal, Check: c.Kind(),
				Table: m.Table, Op: m.Op, ID: m.ID,
				Message: "row mutated more than once in a single apply",
			})
			continue
		}
		mutated[m.Table][m.ID] = m
	}

	// Every row the log does not claim must be untouched. This covers both
	// tables outside the changeset and unaddressed rows of targeted tables.
	for table := range c.pre {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}
		preRows := c.pre.Rows(table)
		for _, id := range sortedIDs(preRows) {
			if _, ok := mutated[table][id]; ok {
				continue
			}
			post, exists := view.Find(table, id)
			if !exists {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: table, ID: id,
					Message: "row outside the changeset disappeared",
				})
				continue
			}
			if !post.Equal(preRows[id]) {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: table, ID: id,
					Message: "row outside the changeset was modified",
				})
			}
		}
	}

	// Rows present after apply but absent both before and from the log were
	// written by something other than the changeset.
	for table := range c.targets {
		postRows := view.Rows(table)
		preRows := c.pre.Rows(table)
		for _, id := range sortedIDs(postRows) {
			_, wasThere := preRows[id]
			_, logged := mutated[table][id]
			if !wasThere && !logged {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: table, ID: id,
					Message: "row appeared without a corresponding mutation",
				})
			}
		}
	}

	// Each logged mutation must be visible in the final state.
	for _, m := range log {
		post, exists := view.Find(m.Table, m.ID)
		switch m.Op {
		case domain.OpDelete:
			if exists {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: m.Table, Op: m.Op, ID: m.ID,
					Message: "deleted row still present",
				})
			}
		default:
			if !exists {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: m.Table, Op: m.Op, ID: m.ID,
					Message: fmt.Sprintf("%s not reflected in final state", m.Op),
				})
			} else if !post.Equal(m.After) {
				res.Violations = append(res.Violations, domain.Violation{
					Severity: domain.SeverityFatal, Check: c.Kind(),
					Table: m.Table, Op: m.Op, ID: m.ID,
					Message: "final row differs from the logged after image",
				})
			}
		}
	}
	return res, nil
}
