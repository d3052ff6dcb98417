package notify

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"warroom/core/store"
)

var renderAt = time.Date(2026, 4, 2, 13, 45, 0, 0, time.UTC)

func TestRenderDefaultTemplate(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	out, err := r.Render(store.SubjectRef{Type: store.SubjectIncident, ID: 12}, "Alice is now commander", renderAt)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	g := goldie.New(t)
	g.Assert(t, "default_incident", []byte(out))
}

func TestRenderCustomTemplate(t *testing.T) {
	r, err := NewRenderer(`{{.Time}} {{.Type}}/{{.ID}}: {{.Description}}`)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	out, err := r.Render(store.SubjectRef{Type: store.SubjectCase, ID: 3}, "  bob has been removed ", renderAt)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	g := goldie.New(t)
	g.Assert(t, "custom_case", []byte(out))
}

func TestRenderRejectsBrokenTemplate(t *testing.T) {
	if _, err := NewRenderer("{{.Label"); err == nil {
		t.Fatalf("expected parse error")
	}
	r, err := NewRenderer("{{.Nope}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := r.Render(store.SubjectRef{Type: store.SubjectCase, ID: 1}, "x", renderAt); err == nil {
		t.Fatalf("expected execution error for unknown field")
	}
}
