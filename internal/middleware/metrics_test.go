package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeMetricsRecorder struct {
	statuses  []int
	latencies []time.Duration
}

func (f *fakeMetricsRecorder) RecordHTTPStatus(statusCode int) {
	f.statuses = append(f.statuses, statusCode)
}

func (f *fakeMetricsRecorder) RecordRequestLatency(duration time.Duration) {
	f.latencies = append(f.latencies, duration)
}

func TestMetricsMiddleware_RecordsStatusAndLatency(t *testing.T) {
	recorder := &fakeMetricsRecorder{}
	handler := NewMetricsMiddleware(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/study-sets", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusCreated {
		t.Errorf("statuses = %v, want [201]", recorder.statuses)
	}
	if len(recorder.latencies) != 1 {
		t.Fatalf("latencies = %v, want 1 entry", recorder.latencies)
	}
	if recorder.latencies[0] < 0 {
		t.Errorf("latency = %v, want >= 0", recorder.latencies[0])
	}
}

func TestMetricsMiddleware_DefaultsTo200WhenHandlerWritesBody(t *testing.T) {
	recorder := &fakeMetricsRecorder{}
	handler := NewMetricsMiddleware(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusOK {
		t.Errorf("statuses = %v, want [200]", recorder.statuses)
	}
}
