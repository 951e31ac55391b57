package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	StateUpdates.WithLabelValues(ResultOK).Inc()
	ActiveStreams.WithLabelValues("sse").Set(0)
	ObserveApplyLatency(time.Now())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"homestate_state_updates_total",
		"homestate_active_streams",
		"homestate_apply_latency_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %s", name)
		}
	}
}
