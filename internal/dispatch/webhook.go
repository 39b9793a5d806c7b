package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender POSTs event payloads to a configured URL. Delivery is
// at-least-once with bounded retry; a hard timeout bounds every attempt.
type WebhookSender struct {
	url         string
	secret      string
	client      *http.Client
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:         url,
		secret:      secret,
		maxAttempts: 3,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// Send delivers the payload, retrying with exponential backoff. The last
// error is returned after the attempts are exhausted; the caller logs it and
// moves on, never failing the pipeline.
func (s *WebhookSender) Send(ctx context.Context, payload []byte) error {
	var lastErr error

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff(attempt - 1)):
			}
		}

		if err := s.post(ctx, payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *WebhookSender) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vigia-Webhook/1.0")
	if s.secret != "" {
		req.Header.Set("X-Vigia-Signature", Sign(s.secret, payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
