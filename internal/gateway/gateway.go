package gateway

import "context"

// Category is the closed set of gateway failure classes the engine
// understands. Anything else is CategoryUnknown and the raw gateway
// message is passed through untranslated.
type Category string

const (
	CategoryCardDeclined      Category = "card_declined"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryExpiredCard       Category = "expired_card"
	CategoryInvalidNumber     Category = "invalid_number"
	CategoryInvalidCVC        Category = "invalid_cvc"
	CategoryProcessingError   Category = "processing_error"
	CategoryAuthRequired      Category = "authentication_required"
	CategoryUnknown           Category = "unknown"
)

// Outcome is the result class of a confirmation call.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeRequiresAction Outcome = "requires_action"
	OutcomeFailed         Outcome = "failed"
)

// Intent is the engine's view of a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

// Failure carries a classified gateway error.
type Failure struct {
	Category   Category
	Code       string
	RawMessage string
}

// ConfirmResult is the typed variant set returned by Confirm.
type ConfirmResult struct {
	Outcome       Outcome
	TransactionID string
	AmountCents   int64
	Failure       *Failure
}

// IntentParams describes one intent-creation attempt. IdempotencyKey must be
// freshly minted for every attempt, including retries.
type IntentParams struct {
	LeadID         string
	FullName       string
	Email          string
	Phone          string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// ConfirmParams binds a payment method and billing identity to an intent.
type ConfirmParams struct {
	IntentID        string
	PaymentMethodID string
	ReturnURL       string
	BillingName     string
	BillingEmail    string
}

// Client is the subset of gateway operations the checkout engine needs.
type Client interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, params ConfirmParams) (*ConfirmResult, error)
	CancelIntent(ctx context.Context, intentID string) error
}
