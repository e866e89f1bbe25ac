package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stagepass/checkout-engine/internal/gateway"
	"github.com/stagepass/checkout-engine/internal/track"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
	"github.com/stagepass/checkout-engine/pkg/idem"
)

// BillingPrefill pre-populates the payment surface from the lead record so
// the visitor is not asked twice for identity fields.
type BillingPrefill struct {
	Name  string
	Email string
	Phone string
}

// PaymentBinding configures the embeddable payment surface on the client.
type PaymentBinding struct {
	IntentID          string
	ClientSecret      string
	AmountCents       int64
	Currency          string
	Locale            string
	Prefill           BillingPrefill
	HideBillingFields bool
	Prewarmed         bool
}

// EnterPayment prepares the payment step. If a prewarmed intent exists the
// creation is skipped entirely (hot path); otherwise a fresh idempotency key
// is minted and the intent is created before binding (cold path).
func (e *Engine) EnterPayment(ctx context.Context, sessionID string) (*PaymentBinding, error) {
	e.mu.Lock()
	s, err := e.lookup(sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if s.step != StepPayment {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "lead form must be submitted first")
	}
	if s.lead == nil {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment step without lead record")
	}
	lead := *s.lead

	if s.intent != nil {
		binding := e.bindingLocked(s, lead)
		e.mu.Unlock()
		return binding, nil
	}

	key := idem.MintKey(e.environment)
	s.idempotencyKey = key
	epoch := s.epoch
	params := gateway.IntentParams{
		LeadID:         s.leadID,
		FullName:       lead.FullName,
		Email:          lead.Email,
		Phone:          lead.Phone,
		AmountCents:    e.cfg.TicketPriceCents,
		Currency:       e.cfg.Currency,
		IdempotencyKey: key,
	}
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout())
	defer cancel()
	intent, createErr := e.gateway.CreateIntent(callCtx, params)
	if createErr != nil {
		if typed := pkgerrors.As(createErr); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "payment intent creation failed")
	}

	e.mu.Lock()
	s, lookupErr := e.lookup(sessionID)
	if lookupErr != nil || s.epoch != epoch {
		e.mu.Unlock()
		go e.releaseIntent(intent.ID)
		return nil, pkgerrors.New(pkgerrors.CodeStale, "checkout session was reset")
	}
	if s.intent != nil {
		// a prewarm completion won the race; keep the existing reference
		binding := e.bindingLocked(s, lead)
		e.mu.Unlock()
		go e.releaseIntent(intent.ID)
		return binding, nil
	}
	s.intent = &IntentRef{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.AmountCents,
		Currency:     intent.Currency,
	}
	binding := e.bindingLocked(s, lead)
	e.mu.Unlock()

	e.metrics.IncIntent("cold")
	return binding, nil
}

func (e *Engine) bindingLocked(s *session, lead LeadRecord) *PaymentBinding {
	return &PaymentBinding{
		IntentID:     s.intent.ID,
		ClientSecret: s.intent.ClientSecret,
		AmountCents:  s.intent.AmountCents,
		Currency:     s.intent.Currency,
		Locale:       e.cfg.Locale,
		Prefill: BillingPrefill{
			Name:  lead.FullName,
			Email: lead.Email,
			Phone: lead.Phone,
		},
		HideBillingFields: true,
		Prewarmed:         s.intent.Prewarmed,
	}
}

// ConfirmInput identifies the payment method selected on the surface.
type ConfirmInput struct {
	PaymentMethodID string
}

// ConfirmOutcome is returned for the two non-error confirmation results.
type ConfirmOutcome struct {
	Outcome       gateway.Outcome
	TransactionID string
	RedirectURL   string
	RedirectDelay time.Duration
}

// Confirm invokes the gateway's confirm operation. Outcomes:
// immediate success moves to StepSuccess and schedules the redirect;
// requires-action leaves local state untouched (completion arrives via a
// server-side webhook collaborator); a hard failure is translated and
// returned as a gateway error while the step stays at StepPayment with the
// pay action unlocked. A second confirm while one is in flight is rejected.
func (e *Engine) Confirm(ctx context.Context, sessionID string, input ConfirmInput) (*ConfirmOutcome, error) {
	if input.PaymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required").
			WithDetails(map[string]any{"step": string(StepPayment)})
	}

	e.mu.Lock()
	s, err := e.lookup(sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if s.step == StepSuccess {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already completed")
	}
	if s.step != StepPayment || s.intent == nil {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not prepared")
	}
	if s.confirmInFlight {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "confirmation already in progress")
	}
	s.confirmInFlight = true
	epoch := s.epoch
	intentID := s.intent.ID
	lead := *s.lead
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout())
	defer cancel()
	started := time.Now()
	result, confirmErr := e.gateway.ConfirmIntent(callCtx, gateway.ConfirmParams{
		IntentID:        intentID,
		PaymentMethodID: input.PaymentMethodID,
		ReturnURL:       e.cfg.SuccessURL,
		BillingName:     lead.FullName,
		BillingEmail:    lead.Email,
	})
	e.metrics.ObserveConfirmDuration(time.Since(started))

	e.mu.Lock()
	s, lookupErr := e.lookup(sessionID)
	if lookupErr != nil || s.epoch != epoch {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStale, "checkout session was reset")
	}
	s.confirmInFlight = false

	if confirmErr != nil {
		e.mu.Unlock()
		e.metrics.IncConfirm("error")
		if typed := pkgerrors.As(confirmErr); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, confirmErr, "gateway confirmation failed")
	}

	switch result.Outcome {
	case gateway.OutcomeSucceeded:
		s.step = StepSuccess
		s.intent = nil
		e.mu.Unlock()
		e.metrics.IncConfirm("succeeded")
		e.emit(ctx, track.Event{
			Name: track.EventPaymentCompleted,
			Fields: map[string]any{
				"transaction_id": result.TransactionID,
				"amount":         formatAmount(result.AmountCents),
				"currency":       e.cfg.Currency,
			},
		})
		return &ConfirmOutcome{
			Outcome:       gateway.OutcomeSucceeded,
			TransactionID: result.TransactionID,
			RedirectURL:   e.cfg.SuccessURL,
			RedirectDelay: e.cfg.RedirectDelay,
		}, nil

	case gateway.OutcomeRequiresAction:
		e.mu.Unlock()
		e.metrics.IncConfirm("requires_action")
		return &ConfirmOutcome{
			Outcome:       gateway.OutcomeRequiresAction,
			TransactionID: result.TransactionID,
		}, nil

	default:
		e.mu.Unlock()
		e.metrics.IncConfirm("declined")
		failure := result.Failure
		if failure == nil {
			failure = &gateway.Failure{Category: gateway.CategoryProcessingError}
		}
		e.emit(ctx, track.Event{
			Name: track.EventPaymentError,
			Fields: map[string]any{
				"category": string(failure.Category),
				"code":     failure.Code,
			},
		})
		return nil, pkgerrors.New(pkgerrors.CodeGateway, gateway.Translate(failure)).
			WithDetails(map[string]any{
				"category": string(failure.Category),
				"code":     failure.Code,
				"step":     string(StepPayment),
			})
	}
}

func formatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
