package metrics

import (
	"testing"

	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type countingRecorder struct{ n int }

func (c *countingRecorder) Record(string, map[string]any) { c.n++ }

func TestRecorder_CountsEventsAndForwards(t *testing.T) {
	m := New(prometheus.NewRegistry())
	next := &countingRecorder{}
	rec := m.Recorder(next)

	rec.Record(tracker.EventTrackingCompleted, nil)
	rec.Record(tracker.EventTrackingCompleted, nil)
	rec.Record(tracker.EventTrackingFailed, nil)
	rec.Record(tracker.EventVerificationRequired, nil)
	rec.Record(tracker.EventSessionInsertFailed, nil)
	rec.Record(tracker.EventDuplicateChecked, map[string]any{"verdict": true})
	rec.Record(tracker.EventDuplicateCheckFailed, map[string]any{"verdict": false})

	assert.Equal(t, 7, next.n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsTracked.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsTracked.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verificationRequired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepFailures.WithLabelValues("session_insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicateChecks.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicateChecks.WithLabelValues("error")))
}

func TestIncHTTPRequest_Buckets(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncHTTPRequest("GET", 200)
	m.IncHTTPRequest("GET", 204)
	m.IncHTTPRequest("POST", 429)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "4xx")))
}

func TestRecorder_NilNext(t *testing.T) {
	rec := New(prometheus.NewRegistry()).Recorder(nil)
	assert.NotPanics(t, func() { rec.Record("anything", nil) })
}
