package checkout

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/checkout-engine/internal/gateway"
	"github.com/stagepass/checkout-engine/internal/leads"
	"github.com/stagepass/checkout-engine/internal/track"
	"github.com/stagepass/checkout-engine/pkg/config"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
	"github.com/stagepass/checkout-engine/pkg/logger"
)

type fakeGateway struct {
	mu sync.Mutex

	createCalls  []gateway.IntentParams
	confirmCalls []gateway.ConfirmParams
	canceled     []string

	createErr     error
	confirmResult *gateway.ConfirmResult
	confirmErr    error
}

func (f *fakeGateway) CreateIntent(_ context.Context, params gateway.IntentParams) (*gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	n := len(f.createCalls)
	return &gateway.Intent{
		ID:           fmt.Sprintf("pi_%d", n),
		ClientSecret: fmt.Sprintf("pi_%d_secret", n),
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
	}, nil
}

func (f *fakeGateway) ConfirmIntent(_ context.Context, params gateway.ConfirmParams) (*gateway.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls = append(f.confirmCalls, params)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.confirmResult != nil {
		return f.confirmResult, nil
	}
	return &gateway.ConfirmResult{
		Outcome:       gateway.OutcomeSucceeded,
		TransactionID: "txn_1",
		AmountCents:   4900,
	}, nil
}

func (f *fakeGateway) CancelIntent(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, intentID)
	return nil
}

func (f *fakeGateway) creates() []gateway.IntentParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.IntentParams(nil), f.createCalls...)
}

func (f *fakeGateway) cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

type fakeRegistrar struct {
	mu            sync.Mutex
	registrations []leads.Registration
	err           error
}

func (f *fakeRegistrar) Register(_ context.Context, reg leads.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.registrations = append(f.registrations, reg)
	return nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []track.Event
}

func (f *fakeTracker) Track(_ context.Context, event track.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeTracker) named(name string) []track.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []track.Event
	for _, e := range f.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TicketPriceCents: 4900,
		Currency:         "eur",
		Locale:           "pt",
		SuccessURL:       "https://stagepass.example/obrigado",
		RedirectDelay:    2 * time.Second,
		PrewarmDebounce:  1200 * time.Millisecond,
		PreparingHint:    4 * time.Second,
		SessionTTL:       30 * time.Minute,
		GatewayTimeout:   time.Second,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeGateway, *fakeRegistrar, *fakeTracker) {
	t.Helper()
	gw := &fakeGateway{}
	reg := &fakeRegistrar{}
	tracker := &fakeTracker{}
	engine, err := NewEngine(EngineParams{
		Config:      testCheckoutConfig(),
		Environment: "test",
		Gateway:     gw,
		Leads:       reg,
		Tracker:     tracker,
		Logger:      logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return engine, gw, reg, tracker
}

func validLead() LeadInput {
	return LeadInput{
		FullName:    "Ana Silva",
		Email:       "ana@example.com",
		CountryCode: "+351",
		Phone:       "912 345 678",
	}
}

func openAndSubmit(t *testing.T, e *Engine) string {
	t.Helper()
	opened := e.Open(context.Background(), "hero")
	_, err := e.SubmitLead(context.Background(), opened.SessionID, validLead())
	require.NoError(t, err)
	return opened.SessionID
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(EngineParams{})
	require.Error(t, err)
}

func TestOpenMintsFreshIdentities(t *testing.T) {
	engine, _, _, tracker := newTestEngine(t)
	ctx := context.Background()

	first := engine.Open(ctx, "hero")
	engine.Close(ctx, first.SessionID)
	second := engine.Open(ctx, "footer")

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.LeadID, second.LeadID)
	assert.Equal(t, StepLead, second.Step)
	assert.Equal(t, int64(4900), second.AmountCents)

	view, ok := engine.View(second.SessionID)
	require.True(t, ok)
	assert.NotEmpty(t, view.IdempotencyKey)

	opened := tracker.named(track.EventCheckoutOpened)
	require.Len(t, opened, 2)
	assert.Equal(t, "hero", opened[0].Fields["region"])
	assert.Equal(t, "footer", opened[1].Fields["region"])
}

func TestCloseUnknownSessionIsNoOp(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	engine.Close(context.Background(), "cs_missing")
}

func TestSubmitLeadAdvancesAndEmitsOnce(t *testing.T) {
	engine, _, reg, tracker := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	result, err := engine.SubmitLead(ctx, opened.SessionID, validLead())
	require.NoError(t, err)
	assert.Equal(t, StepPayment, result.Step)
	assert.Equal(t, opened.LeadID, result.LeadID)
	assert.False(t, result.PhoneUpdated)

	require.Len(t, reg.registrations, 1)
	assert.Equal(t, opened.LeadID, reg.registrations[0].LeadID)
	assert.Equal(t, "912345678", reg.registrations[0].Phone)

	require.Len(t, tracker.named(track.EventLeadSubmitted), 1)
}

func TestSubmitLeadValidationFailsFast(t *testing.T) {
	engine, gw, reg, _ := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	input := validLead()
	input.Email = "not-an-email"
	_, err := engine.SubmitLead(ctx, opened.SessionID, input)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	fields, ok := details["fields"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, fields, "email")
	assert.NotContains(t, fields, "full_name")

	assert.Empty(t, reg.registrations)
	assert.Empty(t, gw.creates())

	view, ok := engine.View(opened.SessionID)
	require.True(t, ok)
	assert.Equal(t, StepLead, view.Step)
}

func TestSubmitLeadPhoneTooShort(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	opened := engine.Open(context.Background(), "hero")

	input := validLead()
	input.Phone = "912 34"
	_, err := engine.SubmitLead(context.Background(), opened.SessionID, input)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestSubmitLeadRegistrarFailureKeepsLeadStep(t *testing.T) {
	engine, _, reg, tracker := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	reg.err = fmt.Errorf("connection refused")
	_, err := engine.SubmitLead(ctx, opened.SessionID, validLead())
	require.Error(t, err)

	view, ok := engine.View(opened.SessionID)
	require.True(t, ok)
	assert.Equal(t, StepLead, view.Step)
	assert.Empty(t, tracker.named(track.EventLeadSubmitted))

	reg.err = nil
	result, err := engine.SubmitLead(ctx, opened.SessionID, validLead())
	require.NoError(t, err)
	assert.Equal(t, StepPayment, result.Step)
}

func TestSubmitLeadPhoneCorrectionKeepsLeadID(t *testing.T) {
	engine, _, reg, tracker := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)

	correction := validLead()
	correction.Phone = "935 111 222"
	result, err := engine.SubmitLead(ctx, sessionID, correction)
	require.NoError(t, err)
	assert.True(t, result.PhoneUpdated)
	assert.Equal(t, StepPayment, result.Step)

	view, ok := engine.View(sessionID)
	require.True(t, ok)
	require.NotNil(t, view.Lead)
	assert.Equal(t, "935111222", view.Lead.Phone)
	assert.Equal(t, "Ana Silva", view.Lead.FullName)

	require.Len(t, reg.registrations, 1)
	require.Len(t, tracker.named(track.EventLeadSubmitted), 1)
}

func TestObserveInputBelowThresholdDoesNotSchedule(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	opened := engine.Open(context.Background(), "hero")

	result, err := engine.ObserveInput(context.Background(), opened.SessionID, PartialLead{
		FullName: "An",
		Email:    "ana",
	})
	require.NoError(t, err)
	assert.False(t, result.Scheduled)
	assert.False(t, result.Preparing)
}

func TestPrewarmCreatesSingleIntent(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	result, err := engine.ObserveInput(ctx, opened.SessionID, PartialLead{
		FullName: "Ana Silva",
		Email:    "ana@example.com",
	})
	require.NoError(t, err)
	assert.True(t, result.Scheduled)

	view, ok := engine.View(opened.SessionID)
	require.True(t, ok)
	engine.firePrewarm(opened.SessionID, 0)

	creates := gw.creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "Ana Silva", creates[0].FullName)
	assert.Equal(t, int64(4900), creates[0].AmountCents)
	assert.NotEmpty(t, creates[0].IdempotencyKey)
	assert.NotEqual(t, view.IdempotencyKey, creates[0].IdempotencyKey)

	view, ok = engine.View(opened.SessionID)
	require.True(t, ok)
	assert.True(t, view.HasIntent)
	assert.True(t, view.IntentPrewarmed)

	// once an intent exists further input reports preparing, never reschedules
	again, err := engine.ObserveInput(ctx, opened.SessionID, PartialLead{
		FullName: "Ana Silva Santos",
		Email:    "ana@example.com",
	})
	require.NoError(t, err)
	assert.True(t, again.Preparing)
	assert.Equal(t, 4*time.Second, again.PreparingHideAfter)

	engine.firePrewarm(opened.SessionID, 0)
	assert.Len(t, gw.creates(), 1)
}

func TestPrewarmFailureIsSwallowed(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	gw.createErr = fmt.Errorf("stripe unavailable")
	_, err := engine.ObserveInput(ctx, opened.SessionID, PartialLead{
		FullName: "Ana Silva",
		Email:    "ana@example.com",
	})
	require.NoError(t, err)
	engine.firePrewarm(opened.SessionID, 0)

	view, ok := engine.View(opened.SessionID)
	require.True(t, ok)
	assert.False(t, view.HasIntent)
	assert.Equal(t, StepLead, view.Step)
}

func TestCloseDuringPrewarmDiscardsResult(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	_, err := engine.ObserveInput(ctx, opened.SessionID, PartialLead{
		FullName: "Ana Silva",
		Email:    "ana@example.com",
	})
	require.NoError(t, err)

	engine.Close(ctx, opened.SessionID)
	engine.firePrewarm(opened.SessionID, 0)

	assert.Empty(t, gw.creates())
	_, ok := engine.View(opened.SessionID)
	assert.False(t, ok)
}

func TestEnterPaymentHotPathSkipsCreation(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	_, err := engine.ObserveInput(ctx, opened.SessionID, PartialLead{
		FullName: "Ana Silva",
		Email:    "ana@example.com",
	})
	require.NoError(t, err)
	engine.firePrewarm(opened.SessionID, 0)
	require.Len(t, gw.creates(), 1)

	_, err = engine.SubmitLead(ctx, opened.SessionID, validLead())
	require.NoError(t, err)

	binding, err := engine.EnterPayment(ctx, opened.SessionID)
	require.NoError(t, err)
	assert.True(t, binding.Prewarmed)
	assert.True(t, binding.HideBillingFields)
	assert.Equal(t, "Ana Silva", binding.Prefill.Name)
	assert.Equal(t, "pt", binding.Locale)

	// the prewarmed intent is reused, no second gateway call
	assert.Len(t, gw.creates(), 1)
}

func TestEnterPaymentColdPathCreatesIntent(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)

	binding, err := engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, binding.Prewarmed)
	assert.NotEmpty(t, binding.ClientSecret)
	assert.Equal(t, int64(4900), binding.AmountCents)
	require.Len(t, gw.creates(), 1)
	assert.Equal(t, "ana@example.com", gw.creates()[0].Email)

	// re-entering binds the same intent without another creation
	again, err := engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, binding.IntentID, again.IntentID)
	assert.Len(t, gw.creates(), 1)
}

func TestEnterPaymentBeforeLeadIsConflict(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	opened := engine.Open(context.Background(), "hero")

	_, err := engine.EnterPayment(context.Background(), opened.SessionID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestIdempotencyKeysDifferAcrossAttempts(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)

	gw.createErr = fmt.Errorf("stripe unavailable")
	_, err := engine.EnterPayment(ctx, sessionID)
	require.Error(t, err)

	gw.createErr = nil
	_, err = engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)

	creates := gw.creates()
	require.Len(t, creates, 2)
	assert.NotEqual(t, creates[0].IdempotencyKey, creates[1].IdempotencyKey)
}

func TestConfirmSuccessCompletesSession(t *testing.T) {
	engine, gw, _, tracker := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)
	_, err := engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)

	gw.confirmResult = &gateway.ConfirmResult{
		Outcome:       gateway.OutcomeSucceeded,
		TransactionID: "txn_42",
		AmountCents:   4900,
	}
	outcome, err := engine.Confirm(ctx, sessionID, ConfirmInput{PaymentMethodID: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSucceeded, outcome.Outcome)
	assert.Equal(t, "txn_42", outcome.TransactionID)
	assert.Equal(t, "https://stagepass.example/obrigado", outcome.RedirectURL)
	assert.Equal(t, 2*time.Second, outcome.RedirectDelay)

	view, ok := engine.View(sessionID)
	require.True(t, ok)
	assert.Equal(t, StepSuccess, view.Step)
	assert.False(t, view.HasIntent)

	completed := tracker.named(track.EventPaymentCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "txn_42", completed[0].Fields["transaction_id"])
	assert.Equal(t, "49.00", completed[0].Fields["amount"])

	// a second confirm after success is rejected, no double charge path
	_, err = engine.Confirm(ctx, sessionID, ConfirmInput{PaymentMethodID: "pm_card"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Len(t, tracker.named(track.EventPaymentCompleted), 1)
}

func TestConfirmDeclineStaysOnPayment(t *testing.T) {
	engine, gw, _, tracker := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)
	_, err := engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)

	raw := "Your card has insufficient funds."
	gw.confirmResult = &gateway.ConfirmResult{
		Outcome: gateway.OutcomeFailed,
		Failure: &gateway.Failure{
			Category:   gateway.CategoryInsufficientFunds,
			Code:       "insufficient_funds",
			RawMessage: raw,
		},
	}
	_, err = engine.Confirm(ctx, sessionID, ConfirmInput{PaymentMethodID: "pm_card"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	assert.NotEqual(t, raw, typed.Message())
	assert.Contains(t, typed.Message(), "fundos")

	view, ok := engine.View(sessionID)
	require.True(t, ok)
	assert.Equal(t, StepPayment, view.Step)
	assert.True(t, view.HasIntent)

	errors := tracker.named(track.EventPaymentError)
	require.Len(t, errors, 1)
	assert.Equal(t, "insufficient_funds", errors[0].Fields["category"])

	// the pay action is unlocked again: a retry reaches the gateway
	gw.confirmResult = &gateway.ConfirmResult{
		Outcome:       gateway.OutcomeSucceeded,
		TransactionID: "txn_2",
		AmountCents:   4900,
	}
	outcome, err := engine.Confirm(ctx, sessionID, ConfirmInput{PaymentMethodID: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSucceeded, outcome.Outcome)
}

func TestConfirmRequiresActionLeavesStateUntouched(t *testing.T) {
	engine, gw, _, tracker := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)
	_, err := engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)

	gw.confirmResult = &gateway.ConfirmResult{
		Outcome:       gateway.OutcomeRequiresAction,
		TransactionID: "txn_3ds",
	}
	outcome, err := engine.Confirm(ctx, sessionID, ConfirmInput{PaymentMethodID: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeRequiresAction, outcome.Outcome)

	view, ok := engine.View(sessionID)
	require.True(t, ok)
	assert.Equal(t, StepPayment, view.Step)
	assert.True(t, view.HasIntent)
	assert.Empty(t, tracker.named(track.EventPaymentCompleted))
}

func TestConfirmWithoutPaymentMethod(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	sessionID := openAndSubmit(t, engine)

	_, err := engine.Confirm(context.Background(), sessionID, ConfirmInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCloseReleasesLiveIntent(t *testing.T) {
	engine, gw, _, _ := newTestEngine(t)
	ctx := context.Background()
	sessionID := openAndSubmit(t, engine)
	binding, err := engine.EnterPayment(ctx, sessionID)
	require.NoError(t, err)

	engine.Close(ctx, sessionID)

	require.Eventually(t, func() bool {
		cancels := gw.cancels()
		return len(cancels) == 1 && cancels[0] == binding.IntentID
	}, time.Second, 10*time.Millisecond)

	_, ok := engine.View(sessionID)
	assert.False(t, ok)
}

func TestUnknownSessionIsStale(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.SubmitLead(context.Background(), "cs_missing", validLead())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStale, typed.Code())
}

func TestSweepEvictsExpiredSessions(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	opened := engine.Open(ctx, "hero")

	engine.mu.Lock()
	engine.sessions[opened.SessionID].expiresAt = time.Now().Add(-time.Minute)
	engine.mu.Unlock()

	engine.sweep(ctx)

	_, ok := engine.View(opened.SessionID)
	assert.False(t, ok)
}
