package checkout

import (
	"time"
)

// Step is the modal's current stage. Movement is strictly forward; a failed
// confirmation stays on StepPayment, it never falls back to StepLead.
type Step string

const (
	StepLead    Step = "lead"
	StepPayment Step = "payment"
	StepSuccess Step = "success"
)

// LeadRecord holds the visitor identity captured by the lead form. After
// submission only the phone may change; the lead identifier never does.
type LeadRecord struct {
	FullName    string
	Email       string
	CountryCode string
	Phone       string
}

// IntentRef points at the single live payment intent bound to a session.
// Creating a second reference before the first is gone is a defect.
type IntentRef struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Prewarmed    bool
}

// session is the ephemeral state of one modal-open-to-close lifecycle. It is
// owned by the Engine and only ever touched under the Engine's lock; async
// completions must re-check the epoch before applying their result.
type session struct {
	id             string
	epoch          uint64
	step           Step
	region         string
	leadID         string
	idempotencyKey string

	lead        *LeadRecord
	provisional *LeadRecord
	intent      *IntentRef

	prewarmTimer    *time.Timer
	prewarmAttempt  bool
	intentInFlight  bool
	confirmInFlight bool

	createdAt time.Time
	expiresAt time.Time
}

// SessionView is a read-only copy handed to transport and tests.
type SessionView struct {
	ID              string
	Step            Step
	Region          string
	LeadID          string
	IdempotencyKey  string
	Lead            *LeadRecord
	Provisional     *LeadRecord
	IntentID        string
	IntentPrewarmed bool
	HasIntent       bool
	CreatedAt       time.Time
}

func (s *session) view() *SessionView {
	view := &SessionView{
		ID:             s.id,
		Step:           s.step,
		Region:         s.region,
		LeadID:         s.leadID,
		IdempotencyKey: s.idempotencyKey,
		CreatedAt:      s.createdAt,
	}
	if s.lead != nil {
		lead := *s.lead
		view.Lead = &lead
	}
	if s.provisional != nil {
		prov := *s.provisional
		view.Provisional = &prov
	}
	if s.intent != nil {
		view.HasIntent = true
		view.IntentID = s.intent.ID
		view.IntentPrewarmed = s.intent.Prewarmed
	}
	return view
}
