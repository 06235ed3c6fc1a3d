package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// LogSink writes notifications as log lines. It is the default sink
// when no webhook is configured, and keeps the audit trail on stderr
// where an MCP host can capture it.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink builds a LogSink writing to w.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{logger: log.New(w, "", log.LstdFlags)}
}

func (s *LogSink) Send(_ context.Context, n Notification) error {
	s.logger.Printf("notify %s user=%s request=%s: %s", n.Event, n.RecipientID, n.RequestID, n.Message)
	return nil
}

// webhookTimeout bounds a single delivery attempt.
const webhookTimeout = 10 * time.Second

// For testing: allow swapping the HTTP client.
var webhookClient = &http.Client{Timeout: webhookTimeout}

// WebhookSink POSTs each notification as JSON to a fixed endpoint.
type WebhookSink struct {
	endpoint string
}

// NewWebhookSink builds a WebhookSink for the given URL.
func NewWebhookSink(endpoint string) *WebhookSink {
	return &WebhookSink{endpoint: endpoint}
}

func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
