package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stagepass/checkout-engine/pkg/config"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
)

// Registration is the payload sent to the lead-capture collaborator.
type Registration struct {
	LeadID   string `json:"lead_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Registrar submits captured leads. The engine treats the call as
// fire-and-confirm: a failure blocks the step transition but is retryable.
type Registrar interface {
	Register(ctx context.Context, reg Registration) error
}

// Client talks to the lead-capture collaborator over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds the collaborator client with a bounded timeout.
func NewClient(cfg config.LeadsConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Register submits the lead. Timeouts and non-2xx responses surface as
// retryable dependency errors.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if reg.LeadID == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "lead id required")
	}

	payload, err := json.Marshal(reg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal lead registration")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/leads", bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build lead request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lead capture call failed")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("lead capture returned %d", resp.StatusCode))
	}
	return nil
}
