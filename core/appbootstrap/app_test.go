package appbootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"warroom/config"
	"warroom/core/utils"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(t.TempDir(), "warroom.db"),
		ListenAddr: "127.0.0.1:0",
		Auth:       config.AuthConfig{Disabled: true},
		Incidents:  config.IncidentsConfig{EventSource: "Warroom Core App"},
		Scheduler:  config.SchedulerConfig{Enabled: true, PointerSyncSpec: "@every 1h"},
	}
}

func TestNewServesComposedAPI(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), utils.NewNopLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()
	if len(app.workers) != 1 {
		t.Fatalf("expected the reconciler worker, got %d", len(app.workers))
	}

	body := `{"title":"Checkout is down","reporter_email":"rita@example.com"}`
	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/incidents", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create incident: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestComposeRejectsBrokenNotifyTemplate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify = config.NotifyConfig{WebhookURL: "http://127.0.0.1:1/hook", Template: "{{ .Nope "}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected template error")
	}
}
