// Package maintenance hands damage reports to the maintenance subsystem.
package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lablink/apperr"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
)

// Signal is the damage_reported message.
type Signal struct {
	EventID    int64     `json:"eventId"`
	ItemID     string    `json:"itemId"`
	RequestID  string    `json:"requestId"`
	ReturnID   string    `json:"returnId"`
	UnitIDs    []string  `json:"unitIds,omitempty"`
	Quantity   int       `json:"quantity"`
	Condition  string    `json:"condition"`
	Bucket     string    `json:"bucket"`
	ReportedBy string    `json:"reportedBy"`
	Notes      string    `json:"notes,omitempty"`
	At         time.Time `json:"at"`
}

type Sink interface {
	Report(ctx context.Context, s Signal) error
}

// WebhookSink POSTs signals as JSON. Repeated failures open the breaker and
// later calls fail fast until it half-opens.
type WebhookSink struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSink{
		url:    url,
		client: client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "maintenance-webhook",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (w *WebhookSink) Report(ctx context.Context, s Signal) error {
	body, err := jsoniter.ConfigFastest.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", fmt.Sprintf("damage-%d", s.EventID))
		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("maintenance webhook: status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return apperr.Unavailable("maintenance webhook", err)
	}
	return nil
}

func (w *WebhookSink) State() string { return w.cb.State().String() }

// LogSink only logs; used when no webhook is configured.
type LogSink struct{ Log *slog.Logger }

func (l LogSink) Report(ctx context.Context, s Signal) error {
	l.Log.WarnContext(ctx, "damage reported",
		"item_id", s.ItemID, "request_id", s.RequestID, "condition", s.Condition,
		"bucket", s.Bucket, "quantity", s.Quantity)
	return nil
}
