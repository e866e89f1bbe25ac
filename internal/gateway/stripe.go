package gateway

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
	pkgstripe "github.com/stagepass/checkout-engine/pkg/stripe"
)

type stripeGateway struct{}

// NewStripeGateway wraps the initialized Stripe client so the engine can be
// tested against a fake.
func NewStripeGateway(api *pkgstripe.Client) Client {
	if api == nil {
		return nil
	}
	return &stripeGateway{}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	if params.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency key required for intent creation")
	}

	req := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(params.AmountCents),
		Currency:     stripe.String(params.Currency),
		ReceiptEmail: stripe.String(params.Email),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"lead_id":   params.LeadID,
			"full_name": params.FullName,
			"phone":     params.Phone,
		},
	}
	req.Context = ctx
	req.IdempotencyKey = stripe.String(params.IdempotencyKey)

	intent, err := paymentintent.New(req)
	if err != nil {
		return nil, wrapStripeError(err, "create payment intent")
	}
	return &Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.Amount,
		Currency:     string(intent.Currency),
	}, nil
}

func (g *stripeGateway) ConfirmIntent(ctx context.Context, params ConfirmParams) (*ConfirmResult, error) {
	req := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(params.PaymentMethodID),
	}
	if params.ReturnURL != "" {
		req.ReturnURL = stripe.String(params.ReturnURL)
	}
	req.Context = ctx

	intent, err := paymentintent.Confirm(params.IntentID, req)
	if err != nil {
		if failure := ClassifyError(err); failure != nil {
			return &ConfirmResult{Outcome: OutcomeFailed, Failure: failure}, nil
		}
		return nil, wrapStripeError(err, "confirm payment intent")
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &ConfirmResult{
			Outcome:       OutcomeSucceeded,
			TransactionID: intent.ID,
			AmountCents:   intent.Amount,
		}, nil
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusProcessing:
		return &ConfirmResult{Outcome: OutcomeRequiresAction, TransactionID: intent.ID}, nil
	default:
		return &ConfirmResult{
			Outcome: OutcomeFailed,
			Failure: &Failure{
				Category:   CategoryProcessingError,
				Code:       string(intent.Status),
				RawMessage: "payment did not complete",
			},
		}, nil
	}
}

func (g *stripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	req := &stripe.PaymentIntentCancelParams{}
	req.Context = ctx
	if _, err := paymentintent.Cancel(intentID, req); err != nil {
		return wrapStripeError(err, "cancel payment intent")
	}
	return nil
}

// ClassifyError maps a Stripe card error onto the engine's closed failure
// set. Non-card errors return nil so callers treat them as transport faults.
func ClassifyError(err error) *Failure {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil
	}
	if stripeErr.Type != stripe.ErrorTypeCard {
		return nil
	}

	failure := &Failure{
		Code:       string(stripeErr.Code),
		RawMessage: stripeErr.Msg,
		Category:   CategoryUnknown,
	}

	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined:
		failure.Category = CategoryCardDeclined
		switch stripeErr.DeclineCode {
		case stripe.DeclineCodeInsufficientFunds:
			failure.Category = CategoryInsufficientFunds
		case stripe.DeclineCodeExpiredCard:
			failure.Category = CategoryExpiredCard
		case stripe.DeclineCodeAuthenticationRequired:
			failure.Category = CategoryAuthRequired
		}
		failure.Code = string(stripeErr.DeclineCode)
	case stripe.ErrorCodeExpiredCard:
		failure.Category = CategoryExpiredCard
	case stripe.ErrorCodeIncorrectNumber, stripe.ErrorCodeInvalidNumber:
		failure.Category = CategoryInvalidNumber
	case stripe.ErrorCodeIncorrectCVC, stripe.ErrorCodeInvalidCVC:
		failure.Category = CategoryInvalidCVC
	case stripe.ErrorCodeProcessingError:
		failure.Category = CategoryProcessingError
	case stripe.ErrorCodeAuthenticationRequired:
		failure.Category = CategoryAuthRequired
	}
	return failure
}

func wrapStripeError(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
