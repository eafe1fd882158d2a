package engine

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per pipeline phase and one for
// the run as a whole.
type MetricsRecorder interface {
	Observe(ctx context.Context, phase string, success bool, duration time.Duration)
}

// NopMetricsRecorder discards observations.
type NopMetricsRecorder struct{}

// Observe implements MetricsRecorder.
func (NopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

var expvarSeq uint64

// PhaseStats aggregates the outcomes of one pipeline phase.
type PhaseStats struct {
	Success    int64   `json:"success"`
	Error      int64   `json:"error"`
	DurationMS float64 `json:"duration_ms_total"`
}

// ExpvarMetricsRecorder publishes per-phase success/error counters and total
// durations via expvar for deployments that prefer process-local metrics.
type ExpvarMetricsRecorder struct {
	name   string
	mu     sync.Mutex
	phases map[string]PhaseStats
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder published
// under the supplied name. When name is empty a unique one is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("formsentry_run_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, phases: make(map[string]PhaseStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot returns a copy of the per-phase aggregates.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]PhaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]PhaseStats, len(r.phases))
	for phase, stats := range r.phases {
		out[phase] = stats
	}
	return out
}

// Observe records one phase outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, phase string, success bool, duration time.Duration) {
	if phase == "" {
		return
	}
	r.mu.Lock()
	stats := r.phases[phase]
	if success {
		stats.Success++
	} else {
		stats.Error++
	}
	stats.DurationMS += float64(duration) / float64(time.Millisecond)
	r.phases[phase] = stats
	r.mu.Unlock()
}

// PrometheusMetricsRecorder exports phase counters and a duration histogram
// through a Prometheus registry.
type PrometheusMetricsRecorder struct {
	phases    *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg, falling
// back to the default registerer when reg is nil.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formsentry_phase_total",
			Help: "Validation pipeline phase outcomes.",
		}, []string{"phase", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formsentry_phase_duration_seconds",
			Help:    "Validation pipeline phase durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	if err := reg.Register(rec.phases); err != nil {
		return nil, fmt.Errorf("register phase counter: %w", err)
	}
	if err := reg.Register(rec.durations); err != nil {
		return nil, fmt.Errorf("register duration histogram: %w", err)
	}
	return rec, nil
}

// Observe records one phase outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, phase string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.phases.WithLabelValues(phase, status).Inc()
	r.durations.WithLabelValues(phase).Observe(duration.Seconds())
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = (*ExpvarMetricsRecorder)(nil)
	_ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
)
