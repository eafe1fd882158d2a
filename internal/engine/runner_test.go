package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	blobmemory "formsentry/internal/infra/blob/memory"
	"formsentry/internal/infra/source/memory"
	"formsentry/pkg/domain"
)

func seededSource() *memory.Source {
	state := domain.NewState()
	state[domain.TableForms]["form-1"] = domain.Row{"id": "form-1", "slug": "intake", "title": "Intake"}
	state[domain.TableFields]["field-1"] = domain.Row{
		"id": "field-1", "form_id": "form-1", "code": "age", "label": "Age",
		"type": "number", "position": int64(1), "required": true,
	}
	state[domain.TableFields]["field-2"] = domain.Row{
		"id": "field-2", "form_id": "form-1", "code": "consent", "label": "Consent",
		"type": "checkbox", "position": int64(2),
	}
	state[domain.TableLogicRules]["rule-1"] = domain.Row{
		"id": "rule-1", "form_id": "form-1", "field_id": "field-1",
		"operator": "greater_than", "value": "65", "action": "show", "target_field_id": "field-2",
	}
	return memory.NewWithState(state)
}

func TestRunValidChangesetWithPlaceholders(t *testing.T) {
	src := seededSource()
	before, _ := snapshotDigest(t, src)

	r := NewRunner(src, nil)
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$os_units", "name": "Units", "form_id": "form-1"})
	cs.AddInsert(domain.TableOptionItems, domain.Row{
		"id": "$oi_years", "option_set_id": "$os_units", "value": "years", "label": "Years",
		"position": int64(1), "active": true,
	})

	report, err := r.Run(context.Background(), cs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Verdict.OK {
		t.Fatalf("want OK verdict, got %v", report.Verdict.Violations)
	}
	if len(report.Substitutions) != 2 || len(report.Mutations) != 2 {
		t.Fatalf("bad report: subs=%v mutations=%d", report.Substitutions, len(report.Mutations))
	}
	if report.RunID == "" {
		t.Fatalf("missing run id")
	}

	// The live source must be untouched by a validation run.
	after, _ := snapshotDigest(t, src)
	if before != after {
		t.Fatalf("validation run mutated the source")
	}
}

func TestRunUnresolvedPlaceholderIsTerminal(t *testing.T) {
	r := NewRunner(seededSource(), nil)
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionItems, domain.Row{
		"id": "$oi_x", "option_set_id": "$os_never_defined", "value": "x", "label": "X",
		"position": int64(1),
	})

	_, err := r.Run(context.Background(), cs)
	if !errors.Is(err, domain.ErrUnresolvedPlaceholder) {
		t.Fatalf("want ErrUnresolvedPlaceholder, got %v", err)
	}
}

func TestRunOrphanedLogicRule(t *testing.T) {
	r := NewRunner(seededSource(), nil)
	cs := domain.ChangeSet{}
	// Deleting the field while rule-1 still points at it must produce
	// exactly one fatal violation, flagged on the rule.
	cs.AddDelete(domain.TableFields, domain.Row{"id": "field-1"})

	report, err := r.Run(context.Background(), cs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Verdict.OK {
		t.Fatalf("want failing verdict")
	}
	var fatal []domain.Violation
	for _, v := range report.Verdict.Violations {
		if v.Severity == domain.SeverityFatal {
			fatal = append(fatal, v)
		}
	}
	if len(fatal) != 1 {
		t.Fatalf("want exactly one fatal violation, got %v", fatal)
	}
	if fatal[0].Check != domain.CheckReferential || fatal[0].Table != domain.TableLogicRules || fatal[0].ID != "rule-1" {
		t.Fatalf("violation not pinned to the orphaned rule: %+v", fatal[0])
	}
}

func TestRunApplyFailureBecomesVerdict(t *testing.T) {
	r := NewRunner(seededSource(), nil)
	cs := domain.ChangeSet{}
	cs.AddUpdate(domain.TableFields, domain.Row{"id": "no-such-field", "label": "X"})

	report, err := r.Run(context.Background(), cs)
	if err != nil {
		t.Fatalf("apply failures must not be terminal: %v", err)
	}
	if report.Verdict.OK {
		t.Fatalf("want failing verdict")
	}
	if len(report.Mutations) != 0 {
		t.Fatalf("rejected apply must leave no mutations, got %d", len(report.Mutations))
	}
	v := report.Verdict.Violations[0]
	if v.Severity != domain.SeverityFatal || v.ID != "no-such-field" {
		t.Fatalf("bad violation: %+v", v)
	}
}

func TestRunDuplicateSlugInsert(t *testing.T) {
	r := NewRunner(seededSource(), nil)
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableForms, domain.Row{"id": "form-2", "slug": "intake", "title": "Copy"})

	report, err := r.Run(context.Background(), cs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Verdict.OK {
		t.Fatalf("duplicate slug must fail the verdict")
	}
}

func TestRunDuplicateOptionValues(t *testing.T) {
	r := NewRunner(seededSource(), nil)
	cs := domain.ChangeSet{}
	cs.AddInsert(domain.TableOptionSets, domain.Row{"id": "$os_cities", "name": "Cities"})
	for _, token := range []string{"$oi_a", "$oi_b"} {
		cs.AddInsert(domain.TableOptionItems, domain.Row{
			"id": token, "option_set_id": "$os_cities", "value": "Paris", "label": "Paris",
			"position": int64(1), "active": true,
		})
	}

	report, err := r.Run(context.Background(), cs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Verdict.OK {
		t.Fatalf("duplicate option values must fail the verdict")
	}
	found := false
	for _, v := range report.Verdict.Violations {
		if v.Check == domain.CheckStructural && v.Severity == domain.SeverityFatal && v.Table == domain.TableOptionItems {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing structural uniqueness violation: %v", report.Verdict.Violations)
	}
}

func TestRunArchivesReport(t *testing.T) {
	store := blobmemory.New()
	r := NewRunner(seededSource(), nil, WithArchive(store))
	cs := domain.ChangeSet{}
	cs.AddUpdate(domain.TableForms, domain.Row{"id": "form-1", "title": "Renamed"})

	report, err := r.Run(context.Background(), cs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	infos, err := store.List(context.Background(), "runs/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %v", infos, err)
	}
	if infos[0].Key != "runs/"+report.RunID+".json" {
		t.Fatalf("unexpected archive key %q", infos[0].Key)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	r := NewRunner(seededSource(), nil, WithMetrics(rec))
	cs := domain.ChangeSet{}
	cs.AddUpdate(domain.TableForms, domain.Row{"id": "form-1", "title": "Renamed"})

	if _, err := r.Run(context.Background(), cs); err != nil {
		t.Fatalf("run: %v", err)
	}
	snap := rec.Snapshot()
	for _, phase := range []string{"snapshot", "resolve", "apply", "validate", "run"} {
		if snap[phase].Success != 1 {
			t.Fatalf("phase %s not recorded: %v", phase, snap)
		}
	}
}

func TestPrometheusRecorderRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	r := NewRunner(seededSource(), nil, WithMetrics(rec))
	cs := domain.ChangeSet{}
	cs.AddUpdate(domain.TableForms, domain.Row{"id": "form-1", "title": "Renamed"})
	if _, err := r.Run(context.Background(), cs); err != nil {
		t.Fatalf("run: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	if !names["formsentry_phase_total"] || !names["formsentry_phase_duration_seconds"] {
		t.Fatalf("collectors missing: %v", names)
	}

	// Registering twice must surface the duplicate instead of panicking.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
}

func TestRunCancelledContextStillTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(seededSource(), nil)
	cs := domain.ChangeSet{}
	cs.AddUpdate(domain.TableForms, domain.Row{"id": "form-1", "title": "X"})

	if _, err := r.Run(ctx, cs); err == nil {
		t.Fatalf("cancelled run must fail")
	}
}

func snapshotDigest(t *testing.T, src *memory.Source) (string, domain.State) {
	t.Helper()
	state, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	digest, err := state.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	return digest, state
}
