package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pveith/trix/internal/retry"
	"github.com/pveith/trix/pkg/models"
)

// notifyConfig is the action config for the notify kind. Message is a
// {{field}} template.
type notifyConfig struct {
	Message string `json:"message"`
	URL     string `json:"url,omitempty"` // overrides the daemon-wide default
}

// Notify posts a rendered message to a notification endpoint (chat webhook,
// pager bridge). The endpoint defaults to the daemon-wide notify URL and can
// be overridden per action.
type Notify struct {
	client     *http.Client
	defaultURL string
}

func NewNotify(client *http.Client, defaultURL string) *Notify {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notify{client: client, defaultURL: defaultURL}
}

func (n *Notify) Kind() string { return models.ActionNotify }

func (n *Notify) Execute(ctx context.Context, job models.ActionJob) (string, error) {
	var cfg notifyConfig
	if err := json.Unmarshal(job.Config, &cfg); err != nil {
		return "", retry.Permanent(fmt.Errorf("bad notify config: %w", err))
	}
	if cfg.Message == "" {
		return "", retry.Permanent(fmt.Errorf("notify config has no message"))
	}
	url := cfg.URL
	if url == "" {
		url = n.defaultURL
	}
	if url == "" {
		return "", retry.Permanent(fmt.Errorf("notify has no endpoint: set the action url or the daemon notify_url"))
	}

	message, err := renderTemplate(cfg.Message, job.Event)
	if err != nil {
		return "", retry.Permanent(err)
	}

	payload, err := json.Marshal(map[string]string{
		"message":    message,
		"event_id":   job.EventID,
		"trigger_id": job.TriggerID,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal notify payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build notify request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("notify request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return fmt.Sprintf("HTTP %d", resp.StatusCode), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", retry.Permanent(fmt.Errorf("notify rejected with HTTP %d", resp.StatusCode))
	default:
		return "", fmt.Errorf("notify failed with HTTP %d", resp.StatusCode)
	}
}
