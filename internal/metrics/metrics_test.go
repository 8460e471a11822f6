package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSnapshotCounts(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.recordDispatch("add", StatusOK)
	m.recordDispatch("add", StatusException)
	m.recordExecution("add", StatusOK, 4)
	m.recordExecution("add", StatusError, 6)
	m.recordExecution("boom", StatusException, 1)

	s := m.Snapshot()
	if s.Dispatches != 2 || s.Executions != 3 || s.Exceptions != 2 || s.Errors != 1 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if len(s.Functions) != 2 || s.Functions[0].Name != "add" {
		t.Fatalf("unexpected functions %+v", s.Functions)
	}
	if s.Functions[0].AvgMs != 5 {
		t.Fatalf("AvgMs = %v, want 5", s.Functions[0].AvgMs)
	}
	if _, ok := m.FunctionStats("missing"); ok {
		t.Fatal("FunctionStats found unknown function")
	}
}

func TestPrometheusHandler(t *testing.T) {
	InitPrometheus("tasklet_test", nil)
	t.Cleanup(func() { promMetrics = nil })

	RecordDispatch("add", "invoke", "local", StatusOK, 1.5)
	RecordExecution("demo-add", "http", StatusOK, 2)
	AddQueueDepth(1)

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`tasklet_test_dispatch_total{backend="local",mode="invoke",status="ok",task="add"} 1`,
		`tasklet_test_executions_total{function="demo-add",status="ok",surface="http"} 1`,
		`tasklet_test_local_queue_depth 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestPrometheusHandlerUninitialized(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJSONHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var s Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
