package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"warroom/core/store"
)

const DefaultTemplate = `[{{.Label}} #{{.ID}}] {{.Description}}`

// Message is the data a notification template is executed with.
type Message struct {
	Label       string
	Type        string
	ID          int64
	Description string
	At          time.Time
}

func (m Message) Time() string {
	return m.At.UTC().Format("2006-01-02 15:04 UTC")
}

type Renderer struct {
	tpl *template.Template
}

func NewRenderer(text string) (*Renderer, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	tpl, err := template.New("notification").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("notification template: %w", err)
	}
	return &Renderer{tpl: tpl}, nil
}

func (r *Renderer) Render(ref store.SubjectRef, description string, at time.Time) (string, error) {
	var buf bytes.Buffer
	msg := Message{Label: ref.Type.Label(), Type: string(ref.Type), ID: ref.ID, Description: strings.TrimSpace(description), At: at}
	if err := r.tpl.Execute(&buf, msg); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func previewMessage(text string) string {
	raw := strings.TrimSpace(text)
	if len(raw) <= 240 {
		return raw
	}
	return raw[:240]
}
