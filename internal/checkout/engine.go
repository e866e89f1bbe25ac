package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stagepass/checkout-engine/internal/gateway"
	"github.com/stagepass/checkout-engine/internal/leads"
	"github.com/stagepass/checkout-engine/internal/track"
	"github.com/stagepass/checkout-engine/pkg/config"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
	"github.com/stagepass/checkout-engine/pkg/idem"
	"github.com/stagepass/checkout-engine/pkg/logger"
	"github.com/stagepass/checkout-engine/pkg/metrics"
)

// EventTracker receives funnel events. Delivery must never block the flow.
type EventTracker interface {
	Track(ctx context.Context, event track.Event)
}

// EngineParams wires the engine's collaborators.
type EngineParams struct {
	Config      config.CheckoutConfig
	Environment string
	Gateway     gateway.Client
	Leads       leads.Registrar
	Tracker     EventTracker
	Logger      *logger.Logger
	Metrics     *metrics.CheckoutMetrics
}

// Engine orchestrates the checkout modal lifecycle. It owns every session
// and funnels all mutation through its lock; stage logic lives in lead.go,
// prewarm.go and payment.go.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*session

	cfg         config.CheckoutConfig
	environment string
	gateway     gateway.Client
	leads       leads.Registrar
	tracker     EventTracker
	logg        *logger.Logger
	metrics     *metrics.CheckoutMetrics
}

// NewEngine builds the checkout engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("lead registrar required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	env := params.Environment
	if env == "" {
		env = "dev"
	}
	return &Engine{
		sessions:    make(map[string]*session),
		cfg:         params.Config,
		environment: env,
		gateway:     params.Gateway,
		leads:       params.Leads,
		tracker:     params.Tracker,
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// OpenResult describes a freshly opened checkout session.
type OpenResult struct {
	SessionID   string
	LeadID      string
	Step        Step
	AmountCents int64
	Currency    string
	Locale      string
}

// Open starts a new checkout session with fresh identifiers and emits the
// opened event carrying the triggering page region.
func (e *Engine) Open(ctx context.Context, region string) *OpenResult {
	now := time.Now()
	s := &session{
		id:             idem.NewSessionID(),
		step:           StepLead,
		region:         region,
		leadID:         idem.NewLeadID(),
		idempotencyKey: idem.MintKey(e.environment),
		createdAt:      now,
		expiresAt:      now.Add(e.cfg.SessionTTL),
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.metrics.IncOpened()
	e.emit(ctx, track.Event{
		Name:   track.EventCheckoutOpened,
		Fields: map[string]any{"region": region, "session_id": s.id},
	})
	return &OpenResult{
		SessionID:   s.id,
		LeadID:      s.leadID,
		Step:        s.step,
		AmountCents: e.cfg.TicketPriceCents,
		Currency:    e.cfg.Currency,
		Locale:      e.cfg.Locale,
	}
}

// Close destroys the session unconditionally, whichever step was active.
// A live intent is released at the gateway on a detached context; release
// failures are swallowed and logged, never allowed to block the close.
// Closing an unknown or already-closed session is a no-op.
func (e *Engine) Close(ctx context.Context, sessionID string) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.sessions, sessionID)
	s.epoch++
	if s.prewarmTimer != nil {
		s.prewarmTimer.Stop()
		s.prewarmTimer = nil
	}
	intent := s.intent
	s.intent = nil
	s.lead = nil
	s.provisional = nil
	e.mu.Unlock()

	if intent != nil && intent.ID != "" {
		go e.releaseIntent(intent.ID)
	}
}

func (e *Engine) releaseIntent(intentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.gatewayTimeout())
	defer cancel()
	if err := e.gateway.CancelIntent(ctx, intentID); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "intent_id", intentID), "payment surface teardown failed")
	}
}

// View returns a read-only copy of the session, if it exists.
func (e *Engine) View(sessionID string) (*SessionView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.view(), true
}

// StartJanitor evicts expired sessions until the context is canceled.
func (e *Engine) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
}

func (e *Engine) sweep(ctx context.Context) {
	now := time.Now()
	e.mu.Lock()
	var expired []string
	for id, s := range e.sessions {
		if e.cfg.SessionTTL > 0 && now.After(s.expiresAt) {
			expired = append(expired, id)
		}
	}
	e.mu.Unlock()
	for _, id := range expired {
		e.Close(ctx, id)
	}
}

func (e *Engine) lookup(sessionID string) (*session, error) {
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStale, "checkout session not found")
	}
	return s, nil
}

func (e *Engine) emit(ctx context.Context, event track.Event) {
	if e.tracker == nil {
		return
	}
	e.tracker.Track(ctx, event)
}

func (e *Engine) gatewayTimeout() time.Duration {
	if e.cfg.GatewayTimeout > 0 {
		return e.cfg.GatewayTimeout
	}
	return 15 * time.Second
}
