package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sender delivers one rendered notification to a channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type Notification struct {
	SubjectType string `json:"subject_type"`
	SubjectID   int64  `json:"subject_id"`
	Description string `json:"description"`
	Text        string `json:"text"`
}

type WebhookSender struct {
	client *http.Client
	url    string
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{client: &http.Client{Timeout: timeout}, url: url}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	if strings.TrimSpace(s.url) == "" {
		return errors.New("webhook url missing")
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook status %d", resp.StatusCode)
}

type TelegramSender struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
}

func NewTelegramSender(token, chatID string, timeout time.Duration) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
	}
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, n Notification) error {
	if strings.TrimSpace(s.token) == "" || strings.TrimSpace(s.chatID) == "" {
		return errors.New("telegram token or chat id missing")
	}
	raw, _ := json.Marshal(map[string]any{
		"chat_id": s.chatID,
		"text":    n.Text,
	})
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.baseURL, "/"), s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("telegram api status %d", resp.StatusCode)
}
