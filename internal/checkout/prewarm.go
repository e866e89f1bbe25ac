package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/stagepass/checkout-engine/internal/gateway"
	"github.com/stagepass/checkout-engine/pkg/idem"
)

const (
	prewarmMinNameLen = 3
)

// PartialLead carries the lead form's current field values on each change.
type PartialLead struct {
	FullName string
	Email    string
	Phone    string
}

// ObserveResult tells the client whether a speculative attempt is scheduled
// or an intent is already being prepared. PreparingHideAfter drives the
// auto-hiding "payment is being prepared" indicator.
type ObserveResult struct {
	Scheduled          bool
	Preparing          bool
	PreparingHideAfter time.Duration
}

func prewarmThresholdMet(input PartialLead) bool {
	return len(strings.TrimSpace(input.FullName)) >= prewarmMinNameLen &&
		strings.Contains(input.Email, "@")
}

// ObserveInput feeds a field change to the predictive prewarmer. Once the
// minimal-validity threshold is met it (re)starts the debounce timer, so a
// single creation attempt fires per quiet period. At most one speculative
// attempt runs per session; once an intent exists further changes are no-ops.
func (e *Engine) ObserveInput(ctx context.Context, sessionID string, input PartialLead) (*ObserveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	if s.intent != nil {
		return &ObserveResult{Preparing: true, PreparingHideAfter: e.cfg.PreparingHint}, nil
	}
	if s.step != StepLead || s.prewarmAttempt || s.intentInFlight {
		return &ObserveResult{}, nil
	}

	// remember the latest partial values for the provisional record
	s.provisional = &LeadRecord{
		FullName: strings.TrimSpace(input.FullName),
		Email:    strings.TrimSpace(input.Email),
		Phone:    strings.TrimSpace(input.Phone),
	}

	if !prewarmThresholdMet(input) {
		if s.prewarmTimer != nil {
			s.prewarmTimer.Stop()
			s.prewarmTimer = nil
		}
		return &ObserveResult{}, nil
	}

	// restart, never stack: one attempt per quiet period
	if s.prewarmTimer != nil {
		s.prewarmTimer.Stop()
	}
	id := s.id
	epoch := s.epoch
	s.prewarmTimer = time.AfterFunc(e.cfg.PrewarmDebounce, func() {
		e.firePrewarm(id, epoch)
	})
	return &ObserveResult{Scheduled: true}, nil
}

// firePrewarm performs the speculative intent creation. Failures are
// swallowed: prewarming is an optimization, the cold path remains the
// source of truth.
func (e *Engine) firePrewarm(sessionID string, epoch uint64) {
	e.mu.Lock()
	s, err := e.lookup(sessionID)
	if err != nil || s.epoch != epoch || s.step != StepLead ||
		s.intent != nil || s.intentInFlight || s.prewarmAttempt {
		e.mu.Unlock()
		return
	}
	s.prewarmAttempt = true
	s.intentInFlight = true
	s.prewarmTimer = nil

	key := idem.MintKey(e.environment)
	s.idempotencyKey = key
	params := gateway.IntentParams{
		LeadID:         s.leadID,
		AmountCents:    e.cfg.TicketPriceCents,
		Currency:       e.cfg.Currency,
		IdempotencyKey: key,
	}
	if s.provisional != nil {
		params.FullName = s.provisional.FullName
		params.Email = s.provisional.Email
		params.Phone = s.provisional.Phone
	}
	provisional := s.provisional
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.gatewayTimeout())
	defer cancel()
	intent, createErr := e.gateway.CreateIntent(ctx, params)

	e.mu.Lock()
	s, lookupErr := e.lookup(sessionID)
	if lookupErr == nil && s.epoch == epoch {
		s.intentInFlight = false
	}
	stale := lookupErr != nil || s.epoch != epoch || s.step != StepLead || s.intent != nil
	if createErr != nil {
		e.mu.Unlock()
		e.logg.Warn(ctx, "predictive intent creation failed, cold path will retry")
		return
	}
	if stale {
		e.mu.Unlock()
		// the session moved on while we were in flight; release the orphan
		go e.releaseIntent(intent.ID)
		return
	}
	s.intent = &IntentRef{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.AmountCents,
		Currency:     intent.Currency,
		Prewarmed:    true,
	}
	s.provisional = provisional
	e.mu.Unlock()

	e.metrics.IncIntent("predictive")
}
