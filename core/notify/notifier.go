// Package notify delivers transition notifications after commit. Delivery is
// fire-and-forget: failures are logged and counted, never returned.
package notify

import (
	"context"
	"sync"
	"time"

	"warroom/config"
	"warroom/core/metrics"
	"warroom/core/store"
	"warroom/core/utils"
)

type Notifier struct {
	renderer *Renderer
	senders  []Sender
	timeout  time.Duration
	logger   *utils.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	wg       sync.WaitGroup
}

func New(renderer *Renderer, senders []Sender, timeout time.Duration, logger *utils.Logger, m *metrics.Metrics) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{renderer: renderer, senders: senders, timeout: timeout, logger: logger, metrics: m, now: utils.NowUTC}
}

// NewFromConfig builds the configured channels. It returns nil when no
// channel is configured.
func NewFromConfig(cfg config.NotifyConfig, logger *utils.Logger, m *metrics.Metrics) (*Notifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	renderer, err := NewRenderer(cfg.Template)
	if err != nil {
		return nil, err
	}
	var senders []Sender
	if cfg.WebhookURL != "" {
		senders = append(senders, NewWebhookSender(cfg.WebhookURL, cfg.Timeout))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID, cfg.Timeout))
	}
	return New(renderer, senders, cfg.Timeout, logger, m), nil
}

// Notify renders the message and hands it to every sender in the background.
func (n *Notifier) Notify(ctx context.Context, ref store.SubjectRef, description string) {
	if n == nil || len(n.senders) == 0 {
		return
	}
	text, err := n.renderer.Render(ref, description, n.now())
	if err != nil {
		n.logger.Errorf("notify: render for %s: %v", ref, err)
		n.metrics.NotifyFailure("render")
		return
	}
	msg := Notification{SubjectType: string(ref.Type), SubjectID: ref.ID, Description: description, Text: text}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		for _, s := range n.senders {
			if err := s.Send(sendCtx, msg); err != nil {
				n.logger.Warnf("notify: %s delivery for %s failed (%s): %v", s.Name(), ref, previewMessage(text), err)
				n.metrics.NotifyFailure(s.Name())
			}
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
