package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Transition("assign", "commander")
	m.Transition("assign", "commander")
	m.AuditFailure()
	m.NotifyFailure("webhook")
	m.PointerRepair("scribe")
	m.Page(false)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("assign", "commander")); got != 2 {
		t.Fatalf("transitions: got %v", got)
	}
	if got := testutil.ToFloat64(m.auditFailures); got != 1 {
		t.Fatalf("audit failures: got %v", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"warroom_role_transitions_total", "warroom_pointer_repairs_total", "warroom_oncall_pages_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("missing %s in exposition", name)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Transition("assign", "commander")
	m.AuditFailure()
	m.NotifyFailure("telegram")
	m.PointerRepair("commander")
	m.Page(true)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rr.Code)
	}
}
