package track

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stagepass/checkout-engine/pkg/config"
	"github.com/stagepass/checkout-engine/pkg/logger"
)

// Event names emitted by the checkout engine.
const (
	EventCheckoutOpened   = "checkout_opened"
	EventLeadSubmitted    = "lead_submitted"
	EventPaymentError     = "payment_error"
	EventPaymentCompleted = "payment_completed"
)

// Event is one tracking payload. Delivery is fire-and-forget and must never
// block or fail the checkout flow.
type Event struct {
	Name   string         `json:"event"`
	Fields map[string]any `json:"fields,omitempty"`
}

type envelope struct {
	Event
	SentAt time.Time `json:"sent_at"`
}

// Collector ships events to the analytics collaborator over HTTP with a
// capped exponential backoff. A Collector with no URL drops every event.
type Collector struct {
	url         string
	client      *http.Client
	maxAttempts uint64
	logg        *logger.Logger
	wg          sync.WaitGroup
}

// NewCollector builds the HTTP event collector.
func NewCollector(cfg config.TrackingConfig, logg *logger.Logger) *Collector {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &Collector{
		url:         cfg.CollectorURL,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxAttempts: attempts,
		logg:        logg,
	}
}

// Track enqueues the event for asynchronous delivery. The caller's context is
// only used for logging; delivery runs detached so closing the modal or the
// request finishing cannot cancel it.
func (c *Collector) Track(ctx context.Context, event Event) {
	if c == nil || c.url == "" {
		return
	}
	payload, err := json.Marshal(envelope{Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		c.logg.Warn(ctx, fmt.Sprintf("tracking: drop %s, marshal failed", event.Name))
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliver(event.Name, payload)
	}()
}

func (c *Collector) deliver(name string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(c.maxAttempts-1, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("collector returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("collector rejected event: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil && c.logg != nil {
		c.logg.Warn(ctx, fmt.Sprintf("tracking: event %s dropped after retries: %v", name, err))
	}
}

// Close waits for in-flight deliveries, bounded by the context deadline.
func (c *Collector) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
