package checkout

import (
	"context"
	"regexp"
	"strings"

	"github.com/stagepass/checkout-engine/internal/leads"
	"github.com/stagepass/checkout-engine/internal/track"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LeadInput is the lead form as submitted by the visitor.
type LeadInput struct {
	FullName    string
	Email       string
	CountryCode string
	Phone       string
}

// LeadResult reports the outcome of a lead submission.
type LeadResult struct {
	Step         Step
	LeadID       string
	PhoneUpdated bool
}

// cleanPhone strips separators; the result must be 7-15 digits.
func cleanPhone(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '+':
			// separators are tolerated and dropped
		default:
			return "", false
		}
	}
	cleaned := digits.String()
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return "", false
	}
	return cleaned, true
}

// validateLead applies the local constraints before any network call.
func validateLead(input LeadInput) (LeadRecord, *pkgerrors.Error) {
	fields := map[string]string{}

	name := strings.TrimSpace(input.FullName)
	if name == "" {
		fields["full_name"] = "o nome é obrigatório"
	}

	email := strings.TrimSpace(input.Email)
	if !emailPattern.MatchString(email) {
		fields["email"] = "introduza um email válido"
	}

	phone, ok := cleanPhone(input.Phone)
	if !ok {
		fields["phone"] = "introduza um telefone válido (7 a 15 dígitos)"
	}

	if len(fields) > 0 {
		return LeadRecord{}, pkgerrors.New(pkgerrors.CodeValidation, "verifique os dados introduzidos").
			WithDetails(map[string]any{"fields": fields, "step": string(StepLead)})
	}
	return LeadRecord{
		FullName:    name,
		Email:       email,
		CountryCode: strings.TrimSpace(input.CountryCode),
		Phone:       phone,
	}, nil
}

// SubmitLead validates the form, registers the lead with the capture
// collaborator and advances the session to the payment step. Validation
// fails fast with no network call. A network failure leaves the step at
// lead and the submission re-triggerable.
//
// Once in the payment step, resubmission is accepted only as a phone
// correction: the record's phone is replaced, the lead identifier is kept
// and no second conversion event fires. The submitted record is always
// authoritative over any provisional record assembled by the prewarmer.
func (e *Engine) SubmitLead(ctx context.Context, sessionID string, input LeadInput) (*LeadResult, error) {
	record, verr := validateLead(input)
	if verr != nil {
		return nil, verr
	}

	e.mu.Lock()
	s, err := e.lookup(sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	switch s.step {
	case StepSuccess:
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already completed")
	case StepPayment:
		if s.lead != nil {
			s.lead.Phone = record.Phone
			result := &LeadResult{Step: s.step, LeadID: s.leadID, PhoneUpdated: true}
			e.mu.Unlock()
			return result, nil
		}
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "lead already being processed")
	}

	leadID := s.leadID
	epoch := s.epoch
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout())
	defer cancel()
	if err := e.leads.Register(callCtx, leads.Registration{
		LeadID:   leadID,
		FullName: record.FullName,
		Email:    record.Email,
		Phone:    record.Phone,
	}); err != nil {
		return nil, err
	}

	e.mu.Lock()
	s, lookupErr := e.lookup(sessionID)
	if lookupErr != nil || s.epoch != epoch {
		e.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStale, "checkout session was reset")
	}
	if s.step != StepLead {
		result := &LeadResult{Step: s.step, LeadID: s.leadID}
		e.mu.Unlock()
		return result, nil
	}
	s.lead = &record
	s.step = StepPayment
	result := &LeadResult{Step: s.step, LeadID: s.leadID}
	e.mu.Unlock()

	e.metrics.IncLead()
	e.emit(ctx, track.Event{
		Name:   track.EventLeadSubmitted,
		Fields: map[string]any{"lead_id": leadID, "session_id": sessionID},
	})
	return result, nil
}
