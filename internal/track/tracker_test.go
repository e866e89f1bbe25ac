package track

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stagepass/checkout-engine/pkg/config"
)

func TestTrackDeliversEvent(t *testing.T) {
	var mu sync.Mutex
	var received []envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	collector := NewCollector(config.TrackingConfig{
		CollectorURL: server.URL,
		Timeout:      2 * time.Second,
		MaxAttempts:  3,
	}, nil)

	collector.Track(context.Background(), Event{
		Name:   EventPaymentCompleted,
		Fields: map[string]any{"transaction_id": "pi_123", "amount": "45.00"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := collector.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Name != EventPaymentCompleted {
		t.Fatalf("unexpected event %q", received[0].Name)
	}
	if received[0].Fields["transaction_id"] != "pi_123" {
		t.Fatalf("unexpected fields %v", received[0].Fields)
	}
}

func TestTrackRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector := NewCollector(config.TrackingConfig{
		CollectorURL: server.URL,
		Timeout:      2 * time.Second,
		MaxAttempts:  3,
	}, nil)

	collector.Track(context.Background(), Event{Name: EventCheckoutOpened})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := collector.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected retry after 500, got %d attempts", attempts)
	}
}

func TestTrackWithoutCollectorURLIsNoop(t *testing.T) {
	collector := NewCollector(config.TrackingConfig{}, nil)
	collector.Track(context.Background(), Event{Name: EventLeadSubmitted})
	if err := collector.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}
