package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pveith/trix/internal/retry"
	"github.com/pveith/trix/pkg/models"
)

// webhookConfig is the action config for the webhook kind. Body is a
// {{field}} template; when empty the full event is sent as JSON.
type webhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Webhook delivers events to user-configured HTTP endpoints. Responses in the
// 4xx range are permanent failures (the payload will never be accepted);
// 5xx and transport errors are retryable.
type Webhook struct {
	client *http.Client
}

func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{client: client}
}

func (w *Webhook) Kind() string { return models.ActionWebhook }

func (w *Webhook) Execute(ctx context.Context, job models.ActionJob) (string, error) {
	var cfg webhookConfig
	if err := json.Unmarshal(job.Config, &cfg); err != nil {
		return "", retry.Permanent(fmt.Errorf("bad webhook config: %w", err))
	}
	if cfg.URL == "" {
		return "", retry.Permanent(fmt.Errorf("webhook config has no url"))
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var body []byte
	if cfg.Body != "" {
		rendered, err := renderTemplate(cfg.Body, job.Event)
		if err != nil {
			return "", retry.Permanent(err)
		}
		body = []byte(rendered)
	} else {
		var err error
		body, err = json.Marshal(job.Event)
		if err != nil {
			return "", retry.Permanent(fmt.Errorf("marshal event payload: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request to %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()
	// Cap the retained response so a chatty endpoint cannot bloat the audit log.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return fmt.Sprintf("HTTP %d", resp.StatusCode), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", retry.Permanent(fmt.Errorf("webhook rejected with HTTP %d: %s", resp.StatusCode, snippet))
	default:
		return "", fmt.Errorf("webhook failed with HTTP %d: %s", resp.StatusCode, snippet)
	}
}
