package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTask(t *testing.T) {
	before := testutil.ToFloat64(IndexTasks.WithLabelValues("index", OutcomeFailure))
	ObserveTask("index", OutcomeFailure, 20*time.Millisecond)
	after := testutil.ToFloat64(IndexTasks.WithLabelValues("index", OutcomeFailure))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveTask("remove", OutcomeSuccess, time.Millisecond)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pagemind_index_tasks_total") {
		t.Fatalf("metrics output missing task counter")
	}
}
