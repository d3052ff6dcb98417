package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"warroom/config"
	"warroom/core/metrics"
	"warroom/core/store"
)

type fakeSender struct {
	mu   sync.Mutex
	name string
	err  error
	got  []Notification
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return f.err
}

func TestNotifierFansOutAndSwallowsFailures(t *testing.T) {
	r, _ := NewRenderer("")
	ok := &fakeSender{name: "ok"}
	bad := &fakeSender{name: "bad", err: errors.New("down")}
	n := New(r, []Sender{bad, ok}, time.Second, nil, metrics.New())
	ref := store.SubjectRef{Type: store.SubjectIncident, ID: 5}

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, ref, "Incident group updated")
	cancel()
	if err := n.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Fatalf("expected one delivery per sender, got ok=%d bad=%d", len(ok.got), len(bad.got))
	}
	if ok.got[0].Text != "[Incident #5] Incident group updated" {
		t.Fatalf("unexpected text %q", ok.got[0].Text)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), store.SubjectRef{Type: store.SubjectCase, ID: 1}, "x")
	if err := n.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWebhookSender(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type %q", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	err := s.Send(context.Background(), Notification{SubjectType: "incident", SubjectID: 9, Description: "d", Text: "t"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.SubjectID != 9 || got.Text != "t" {
		t.Fatalf("unexpected payload %+v", got)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	if err := NewWebhookSender(failing.URL, time.Second).Send(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected error on 502")
	}
	if err := NewWebhookSender("", time.Second).Send(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected error without url")
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	s := NewTelegramSender("T0K", "-100", time.Second)
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), Notification{Text: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/botT0K/sendMessage" {
		t.Fatalf("path %q", path)
	}
	if body["chat_id"] != "-100" || body["text"] != "hello" {
		t.Fatalf("body %+v", body)
	}
	if err := NewTelegramSender("", "", time.Second).Send(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestNewFromConfig(t *testing.T) {
	n, err := NewFromConfig(config.NotifyConfig{}, nil, nil)
	if err != nil || n != nil {
		t.Fatalf("expected no notifier without channels, got %v %v", n, err)
	}
	n, err = NewFromConfig(config.NotifyConfig{WebhookURL: "http://example.invalid", TelegramToken: "t", TelegramChatID: "c"}, nil, nil)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if len(n.senders) != 2 {
		t.Fatalf("expected webhook and telegram senders, got %d", len(n.senders))
	}
	if _, err := NewFromConfig(config.NotifyConfig{WebhookURL: "http://x", Template: "{{"}, nil, nil); err == nil {
		t.Fatalf("expected template error")
	}
}
