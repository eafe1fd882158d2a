// Package validate evaluates constraint checks against the post-apply
// sandbox state. Checks run concurrently but their results merge in
// registration order, so the violation list is deterministic for a given
// state and mutation log.
package validate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// Engine runs a fixed set of checks. Checks never short-circuit: a fatal
// violation from one check does not stop the others, so a verdict always
// carries the complete picture.
type Engine struct {
	checks []domain.Check
}

// NewEngine returns an engine over the given checks, evaluated in order.
func NewEngine(checks ...domain.Check) *Engine {
	return &Engine{checks: checks}
}

// DefaultChecks returns the standing check set for a schema model. The
// impact check is excluded; it needs per-run inputs and is built with
// NewImpactCheck.
func DefaultChecks(model *schema.Model) []domain.Check {
	return []domain.Check{
		&structuralCheck{model: model},
		&referentialCheck{model: model},
		&conflictingRulesCheck{},
		&activeOptionCheck{},
		&cascadeCheck{model: model},
	}
}

// Run evaluates every check against the view and log. Evaluation is
// concurrent; the merged result preserves check registration order. A check
// returning an error aborts the run with that error, since a verdict built
// from partial evaluation would be misleading.
func (e *Engine) Run(ctx context.Context, view domain.CheckView, log domain.MutationLog) (domain.Result, error) {
	results := make([]domain.Result, len(e.checks))
	errs := make([]error, len(e.checks))

	var wg sync.WaitGroup
	for i, check := range e.checks {
		wg.Add(1)
		go func(i int, check domain.Check) {
			defer wg.Done()
			res, err := check.Evaluate(ctx, view, log)
			if err != nil {
				errs[i] = fmt.Errorf("check %s: %w", check.Name(), err)
				return
			}
			results[i] = res
		}(i, check)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return domain.Result{}, err
	}
	var merged domain.Result
	for _, res := range results {
		merged.Merge(res)
	}
	return merged, nil
}
