package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/storybooks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storybooks/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/storybooks/{id}", "404"))
	if got != 3 {
		t.Fatalf("requests_total = %v, want 3", got)
	}
}

func TestPipelineCounters(t *testing.T) {
	m := New()
	m.RecordModeration("allowed")
	m.RecordModeration("allowed")
	m.RecordModeration("failed")
	m.ObserveStage("text", time.Second, nil)
	m.ObserveStage("image", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.moderationJobs.WithLabelValues("allowed")); got != 2 {
		t.Fatalf("allowed = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 2 {
		t.Fatalf("stage series = %d, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "draw2story_moderation_jobs_total") {
		t.Fatalf("exposition missing moderation counter")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordModeration("allowed")
	m.ObserveModerationWait(time.Second)
	m.ObserveStage("text", time.Second, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := m.Instrument(next); h == nil {
		t.Fatalf("Instrument() returned nil")
	}
}
