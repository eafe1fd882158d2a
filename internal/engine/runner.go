// Package engine drives the validation pipeline: resolve the changeset,
// provision a sandbox, apply, run the constraint checks, and summarize the
// verdict. The live source is only ever read; every run works on its own
// sandbox and releases it on all exit paths.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"formsentry/internal/apply"
	"formsentry/internal/blob"
	"formsentry/internal/resolver"
	"formsentry/internal/sandbox"
	"formsentry/internal/schema"
	"formsentry/internal/validate"
	"formsentry/pkg/domain"
)

// Report is the full outcome of one validation run.
type Report struct {
	RunID         string               `json:"run_id"`
	Verdict       domain.Verdict       `json:"verdict"`
	Substitutions domain.Substitutions `json:"substitutions,omitempty"`
	Mutations     domain.MutationLog   `json:"mutations,omitempty"`
}

// Runner owns the pipeline dependencies for repeated validation runs.
type Runner struct {
	source  domain.SchemaSource
	model   *schema.Model
	extra   []domain.Check
	metrics MetricsRecorder
	logger  Logger
	archive blob.Store

	snapshotTimeout time.Duration
	applyTimeout    time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics sets the metrics recorder; the default discards observations.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the structured logger; the default is silent.
func WithLogger(l Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithArchive enables persisting each report to a blob store under
// runs/<run-id>.json. Archive failures are logged and never fail the run.
func WithArchive(store blob.Store) Option {
	return func(r *Runner) { r.archive = store }
}

// WithChecks appends checks to the standing set for the model.
func WithChecks(checks ...domain.Check) Option {
	return func(r *Runner) { r.extra = append(r.extra, checks...) }
}

// WithSnapshotTimeout bounds sandbox acquisition.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(r *Runner) { r.snapshotTimeout = d }
}

// WithApplyTimeout bounds changeset application.
func WithApplyTimeout(d time.Duration) Option {
	return func(r *Runner) { r.applyTimeout = d }
}

// NewRunner builds a runner over a schema source. A nil model selects the
// built-in form-definition model.
func NewRunner(source domain.SchemaSource, model *schema.Model, opts ...Option) *Runner {
	if model == nil {
		model = schema.Builtin()
	}
	r := &Runner{
		source:  source,
		model:   model,
		metrics: NopMetricsRecorder{},
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates one changeset. Malformed changesets and unreachable sources
// return an error with no verdict; everything discovered inside the sandbox,
// including apply failures, is reported through the verdict. The sandbox is
// released on every path out.
func (r *Runner) Run(ctx context.Context, cs domain.ChangeSet) (Report, error) {
	runID := ulid.Make().String()
	report := Report{RunID: runID}
	started := time.Now()

	prov := sandbox.NewProvisioner(r.source)
	pre, err := r.snapshot(ctx, prov)
	if err != nil {
		r.observe(ctx, "snapshot", false, started)
		return report, err
	}
	r.observe(ctx, "snapshot", true, started)

	resolveStart := time.Now()
	res, err := resolver.Resolve(r.model, pre, cs)
	if err != nil {
		r.observe(ctx, "resolve", false, resolveStart)
		r.logger.Error("changeset resolution failed", "run_id", runID, "error", err)
		return report, err
	}
	r.observe(ctx, "resolve", true, resolveStart)
	report.Substitutions = res.Substitutions

	handle, err := prov.Wrap(pre)
	if err != nil {
		return report, err
	}
	defer handle.Release()

	// Apply stages on a clone and swaps, so pre keeps the pre-apply
	// contents; the impact check compares against it.
	applyStart := time.Now()
	log, err := r.apply(ctx, handle, res.ChangeSet)
	if err != nil {
		r.observe(ctx, "apply", false, applyStart)
		var applyErr *domain.ApplyError
		if !errors.As(err, &applyErr) {
			return report, err
		}
		// A rejected operation is a verdict about the changeset, not a
		// fault of the engine.
		report.Verdict = domain.Summarize([]domain.Violation{applyViolation(applyErr)})
		r.logger.Info("changeset rejected at apply", "run_id", runID, "error", applyErr)
		r.finish(ctx, report, started)
		return report, nil
	}
	r.observe(ctx, "apply", true, applyStart)
	report.Mutations = log

	validateStart := time.Now()
	checks := append(validate.DefaultChecks(r.model), r.extra...)
	checks = append(checks, validate.NewImpactCheck(pre, targetTables(cs)))
	result, err := validate.NewEngine(checks...).Run(ctx, validate.NewView(handle.State()), log)
	if err != nil {
		r.observe(ctx, "validate", false, validateStart)
		return report, fmt.Errorf("validate: %w", err)
	}
	r.observe(ctx, "validate", true, validateStart)

	report.Verdict = domain.Summarize(result.Violations)
	r.finish(ctx, report, started)
	return report, nil
}

func (r *Runner) snapshot(ctx context.Context, prov *sandbox.Provisioner) (domain.State, error) {
	if r.snapshotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.snapshotTimeout)
		defer cancel()
	}
	return prov.Snapshot(ctx)
}

func (r *Runner) apply(ctx context.Context, handle *sandbox.Handle, cs domain.ChangeSet) (domain.MutationLog, error) {
	if r.applyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.applyTimeout)
		defer cancel()
	}
	return apply.Apply(ctx, r.model, handle, cs)
}

// finish records run-level telemetry and archives the report.
func (r *Runner) finish(ctx context.Context, report Report, started time.Time) {
	r.observe(ctx, "run", true, started)
	r.logger.Info("validation run complete",
		"run_id", report.RunID, "ok", report.Verdict.OK,
		"violations", len(report.Verdict.Violations), "mutations", len(report.Mutations))
	r.archiveReport(ctx, report)
}

func (r *Runner) observe(ctx context.Context, phase string, success bool, started time.Time) {
	r.metrics.Observe(ctx, phase, success, time.Since(started))
}

func (r *Runner) archiveReport(ctx context.Context, report Report) {
	if r.archive == nil {
		return
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		r.logger.Warn("archive marshal failed", "run_id", report.RunID, "error", err)
		return
	}
	key := "runs/" + report.RunID + ".json"
	if _, err := r.archive.Put(ctx, key, bytes.NewReader(b), blob.PutOptions{ContentType: "application/json"}); err != nil {
		r.logger.Warn("archive write failed", "run_id", report.RunID, "key", key, "error", err)
	}
}

func targetTables(cs domain.ChangeSet) map[domain.Table]struct{} {
	out := make(map[domain.Table]struct{}, len(cs))
	for _, t := range cs.Tables() {
		out[t] = struct{}{}
	}
	return out
}

// applyViolation folds a rejected operation into a fatal violation.
func applyViolation(e *domain.ApplyError) domain.Violation {
	msg := string(e.Cause)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Cause, e.Err)
	}
	return domain.Violation{
		Severity: domain.SeverityFatal,
		Check:    domain.CheckStructural,
		Table:    e.Table,
		Op:       e.Op,
		ID:       e.ID,
		Message:  msg,
	}
}
