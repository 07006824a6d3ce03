package metrics

import (
	"strconv"

	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	sessionsTracked      *prometheus.CounterVec
	verificationRequired prometheus.Counter
	duplicateChecks      *prometheus.CounterVec
	stepFailures         *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
}

// New registers the service collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsTracked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreachguard_sessions_tracked_total",
			Help: "Tracked session starts by result",
		}, []string{"result"}),

		verificationRequired: f.NewCounter(prometheus.CounterOpts{
			Name: "outreachguard_verification_required_total",
			Help: "Sessions gated behind phone verification",
		}),

		duplicateChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreachguard_duplicate_checks_total",
			Help: "Duplicate account checks by verdict",
		}, []string{"verdict"}),

		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreachguard_tracking_step_failures_total",
			Help: "Non-fatal tracking step failures",
		}, []string{"step"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreachguard_http_requests_total",
			Help: "HTTP requests by method and status class",
		}, []string{"method", "status"}),
	}
}

func (m *Metrics) IncHTTPRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, statusBucket(status)).Inc()
}

func (m *Metrics) HTTPRequests() *prometheus.CounterVec {
	return m.httpRequests
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Recorder counts tracker events and forwards them to next.
type Recorder struct {
	m    *Metrics
	next tracker.Recorder
}

func (m *Metrics) Recorder(next tracker.Recorder) *Recorder {
	if next == nil {
		next = tracker.NopRecorder
	}
	return &Recorder{m: m, next: next}
}

func (r *Recorder) Record(event string, fields map[string]any) {
	switch event {
	case tracker.EventTrackingCompleted:
		r.m.sessionsTracked.WithLabelValues("ok").Inc()
	case tracker.EventTrackingFailed:
		r.m.sessionsTracked.WithLabelValues("failed").Inc()
	case tracker.EventVerificationRequired:
		r.m.verificationRequired.Inc()
	case tracker.EventFingerprintUpsertFailed:
		r.m.stepFailures.WithLabelValues("fingerprint_upsert").Inc()
	case tracker.EventSessionInsertFailed:
		r.m.stepFailures.WithLabelValues("session_insert").Inc()
	case tracker.EventUsageLimitsFailed:
		r.m.stepFailures.WithLabelValues("usage_limits").Inc()
	case tracker.EventDuplicateChecked:
		r.m.duplicateChecks.WithLabelValues(verdictLabel(fields)).Inc()
	case tracker.EventDuplicateCheckFailed:
		r.m.duplicateChecks.WithLabelValues("error").Inc()
	}
	r.next.Record(event, fields)
}

func verdictLabel(fields map[string]any) string {
	if v, ok := fields["verdict"].(bool); ok {
		return strconv.FormatBool(v)
	}
	return "unknown"
}
