// Package oncall resolves who is on call for a service and pages them.
package oncall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"warroom/config"
)

// Resolver returns the email currently on call for serviceRef, or "" when the
// service is unknown.
type Resolver interface {
	Resolve(ctx context.Context, serviceRef string) (string, error)
}

type Page struct {
	ServiceRef  string `json:"service_ref"`
	Email       string `json:"email"`
	Name        string `json:"incident_name"`
	Title       string `json:"incident_title"`
	Description string `json:"incident_description"`
}

type Pager interface {
	Page(ctx context.Context, page Page) error
}

// StaticResolver answers from the oncall.services map of the configuration.
type StaticResolver struct {
	services map[string]string
}

func NewStaticResolver(services map[string]string) *StaticResolver {
	norm := make(map[string]string, len(services))
	for k, v := range services {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		norm[key] = strings.ToLower(strings.TrimSpace(v))
	}
	return &StaticResolver{services: norm}
}

func (r *StaticResolver) Resolve(_ context.Context, serviceRef string) (string, error) {
	if r == nil {
		return "", nil
	}
	return r.services[strings.ToLower(strings.TrimSpace(serviceRef))], nil
}

type HTTPPager struct {
	client *http.Client
	url    string
}

func NewHTTPPager(url string, timeout time.Duration) *HTTPPager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPager{client: &http.Client{Timeout: timeout}, url: url}
}

func (p *HTTPPager) Page(ctx context.Context, page Page) error {
	if strings.TrimSpace(p.url) == "" {
		return errors.New("pager url missing")
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("pager status %d", resp.StatusCode)
}

// FromConfig builds the resolver and, when a pager URL is configured, the
// pager. The pager is nil otherwise.
func FromConfig(cfg config.OncallConfig) (Resolver, Pager) {
	resolver := NewStaticResolver(cfg.Services)
	if strings.TrimSpace(cfg.PagerURL) == "" {
		return resolver, nil
	}
	return resolver, NewHTTPPager(cfg.PagerURL, cfg.RequestTimeout)
}
