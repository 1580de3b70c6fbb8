package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runtimeMetrics struct {
	activeIdentities prometheus.Gauge
	identityLimit    prometheus.Gauge
	activeInflight   prometheus.Gauge
	inflightLimit    prometheus.Gauge

	buildDuration     prometheus.Histogram
	buildTotal        *prometheus.CounterVec
	evictionsTotal    *prometheus.CounterVec
	reapDuration      prometheus.Histogram
	teardownTimeouts  prometheus.Counter
	capacityRejects   prometheus.Counter
	operationDuration prometheus.Histogram

	transcriptAppendDuration prometheus.Histogram
	transcriptsArchivedTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *runtimeMetrics
)

func getMetrics() *runtimeMetrics {
	metricsOnce.Do(func() {
		m := &runtimeMetrics{
			activeIdentities: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "warden_active_identities",
					Help: "Current number of live execution contexts.",
				},
			),
			identityLimit: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "warden_identity_limit",
					Help: "Configured maximum number of concurrent identities.",
				},
			),
			activeInflight: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "warden_active_inflight",
					Help: "Current number of in-flight operations across all identities.",
				},
			),
			inflightLimit: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "warden_inflight_limit",
					Help: "Configured maximum number of global in-flight operations.",
				},
			),
			buildDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "warden_context_build_duration_seconds",
					Help:    "Execution context build duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			buildTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_context_build_total",
					Help: "Total context build attempts by status.",
				},
				[]string{"status"},
			),
			evictionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_evictions_total",
					Help: "Total context evictions by reason.",
				},
				[]string{"reason"},
			),
			reapDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "warden_reap_duration_seconds",
					Help:    "Idle reap sweep duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			teardownTimeouts: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "warden_teardown_timeouts_total",
					Help: "Total lifecycle teardowns abandoned after timeout.",
				},
			),
			capacityRejects: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "warden_capacity_rejects_total",
					Help: "Total resolves rejected because the registry was full.",
				},
			),
			operationDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "warden_operation_duration_seconds",
					Help:    "Duration of operations run against a context in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			transcriptAppendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "warden_transcript_append_duration_seconds",
					Help:    "Transcript append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			transcriptsArchivedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "warden_transcripts_archived_total",
					Help: "Total transcripts moved to the archive directory.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeIdentities,
			m.identityLimit,
			m.activeInflight,
			m.inflightLimit,
			m.buildDuration,
			m.buildTotal,
			m.evictionsTotal,
			m.reapDuration,
			m.teardownTimeouts,
			m.capacityRejects,
			m.operationDuration,
			m.transcriptAppendDuration,
			m.transcriptsArchivedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the HTTP handler serving the prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveIdentities(count int) {
	getMetrics().activeIdentities.Set(float64(count))
}

func SetIdentityLimit(limit int) {
	getMetrics().identityLimit.Set(float64(limit))
}

func SetActiveInflight(count int) {
	getMetrics().activeInflight.Set(float64(count))
}

func SetInflightLimit(limit int) {
	getMetrics().inflightLimit.Set(float64(limit))
}

func RecordContextBuild(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.buildTotal.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
}

func RecordEviction(reason string) {
	getMetrics().evictionsTotal.WithLabelValues(reason).Inc()
}

func RecordReap(duration time.Duration) {
	getMetrics().reapDuration.Observe(duration.Seconds())
}

func RecordTeardownTimeout() {
	getMetrics().teardownTimeouts.Inc()
}

func RecordCapacityReject() {
	getMetrics().capacityRejects.Inc()
}

func RecordOperation(duration time.Duration) {
	getMetrics().operationDuration.Observe(duration.Seconds())
}

func RecordTranscriptAppend(duration time.Duration) {
	getMetrics().transcriptAppendDuration.Observe(duration.Seconds())
}

func RecordTranscriptArchived() {
	getMetrics().transcriptsArchivedTotal.Inc()
}
