package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stagepass/checkout-engine/pkg/config"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
)

func TestRegisterPostsLeadPayload(t *testing.T) {
	var got Registration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/leads" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(config.LeadsConfig{BaseURL: server.URL + "/", Timeout: 2 * time.Second})
	err := client.Register(context.Background(), Registration{
		LeadID:   "lead_abc",
		FullName: "Ana Silva",
		Email:    "ana@example.com",
		Phone:    "912345678",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LeadID != "lead_abc" || got.Email != "ana@example.com" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestRegisterNon2xxIsRetryableDependencyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(config.LeadsConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	err := client.Register(context.Background(), Registration{LeadID: "lead_abc"})
	if err == nil {
		t.Fatal("expected error for 502")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !pkgerrors.MetadataFor(typed.Code()).Retryable {
		t.Fatal("dependency errors must be retryable")
	}
}

func TestRegisterRequiresLeadID(t *testing.T) {
	client := NewClient(config.LeadsConfig{BaseURL: "http://localhost:0", Timeout: time.Second})
	if err := client.Register(context.Background(), Registration{}); err == nil {
		t.Fatal("expected error for missing lead id")
	}
}
