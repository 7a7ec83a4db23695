package mqhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"presentos/internal/model"
	"presentos/pkg/trace"
)

// WebhookDeliverer posts the notification JSON to a chat bot or push relay.
type WebhookDeliverer struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookDeliverer(name, url string, timeout time.Duration) *WebhookDeliverer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookDeliverer{name: name, url: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookDeliverer) Channel() string { return w.name }

func (w *WebhookDeliverer) Deliver(ctx context.Context, p model.NotificationCreatedPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := trace.FromContext(ctx); id != "" {
		req.Header.Set(trace.HeaderName(), id)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.name, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %d", w.name, resp.StatusCode)
	}
	return nil
}
