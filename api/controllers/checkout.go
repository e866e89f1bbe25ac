package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stagepass/checkout-engine/api/responses"
	"github.com/stagepass/checkout-engine/api/validators"
	"github.com/stagepass/checkout-engine/internal/checkout"
	"github.com/stagepass/checkout-engine/internal/gateway"
	pkgerrors "github.com/stagepass/checkout-engine/pkg/errors"
	"github.com/stagepass/checkout-engine/pkg/logger"
)

// OpenSession starts a checkout session for the modal.
func OpenSession(engine *checkout.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout engine unavailable"))
			return
		}

		var payload openSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		opened := engine.Open(r.Context(), payload.Region)
		responses.WriteSuccessStatus(w, http.StatusCreated, openSessionResponse{
			SessionID:   opened.SessionID,
			LeadID:      opened.LeadID,
			Step:        string(opened.Step),
			AmountCents: opened.AmountCents,
			Currency:    opened.Currency,
			Locale:      opened.Locale,
		})
	}
}

// CloseSession tears the session down. Closing is always allowed and always
// succeeds, including for sessions that no longer exist.
func CloseSession(engine *checkout.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout engine unavailable"))
			return
		}
		engine.Close(r.Context(), chi.URLParam(r, "sessionID"))
		responses.WriteSuccess(w, map[string]string{"status": "closed"})
	}
}

// ObserveInputs feeds lead form keystrokes to the predictive prewarmer.
func ObserveInputs(engine *checkout.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout engine unavailable"))
			return
		}

		var payload observeInputsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.ObserveInput(r.Context(), chi.URLParam(r, "sessionID"), checkout.PartialLead{
			FullName: payload.FullName,
			Email:    payload.Email,
			Phone:    payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, observeInputsResponse{
			Scheduled:            result.Scheduled,
			Preparing:            result.Preparing,
			PreparingHideAfterMS: result.PreparingHideAfter.Milliseconds(),
		})
	}
}

// SubmitLead validates and registers the lead form.
func SubmitLead(engine *checkout.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout engine unavailable"))
			return
		}

		var payload submitLeadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.SubmitLead(r.Context(), chi.URLParam(r, "sessionID"), checkout.LeadInput{
			FullName:    payload.FullName,
			Email:       payload.Email,
			CountryCode: payload.CountryCode,
			Phone:       payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, submitLeadResponse{
			Step:         string(result.Step),
			LeadID:       result.LeadID,
			PhoneUpdated: result.PhoneUpdated,
		})
	}
}

// EnterPayment binds the payment surface, reusing a prewarmed intent when
// one exists.
func EnterPayment(engine *checkout.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout engine unavailable"))
			return
		}

		binding, err := engine.EnterPayment(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentBindingResponse{
			IntentID:     binding.IntentID,
			ClientSecret: binding.ClientSecret,
			AmountCents:  binding.AmountCents,
			Currency:     binding.Currency,
			Locale:       binding.Locale,
			Prefill: billingPrefillResponse{
				Name:  binding.Prefill.Name,
				Email: binding.Prefill.Email,
				Phone: binding.Prefill.Phone,
			},
			HideBillingFields: binding.HideBillingFields,
			Prewarmed:         binding.Prewarmed,
		})
	}
}

// ConfirmPayment runs the gateway confirmation for the bound intent.
func ConfirmPayment(engine *checkout.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout engine unavailable"))
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := engine.Confirm(r.Context(), chi.URLParam(r, "sessionID"), checkout.ConfirmInput{
			PaymentMethodID: payload.PaymentMethodID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := confirmResponse{
			Outcome:       string(outcome.Outcome),
			TransactionID: outcome.TransactionID,
		}
		if outcome.Outcome == gateway.OutcomeSucceeded {
			resp.RedirectURL = outcome.RedirectURL
			resp.RedirectDelayMS = outcome.RedirectDelay.Milliseconds()
		}
		responses.WriteSuccess(w, resp)
	}
}

type openSessionRequest struct {
	Region string `json:"region" validate:"required,max=64"`
}

type openSessionResponse struct {
	SessionID   string `json:"session_id"`
	LeadID      string `json:"lead_id"`
	Step        string `json:"step"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Locale      string `json:"locale"`
}

type observeInputsRequest struct {
	FullName string `json:"full_name" validate:"max=200"`
	Email    string `json:"email" validate:"max=320"`
	Phone    string `json:"phone" validate:"max=32"`
}

type observeInputsResponse struct {
	Scheduled            bool  `json:"scheduled"`
	Preparing            bool  `json:"preparing"`
	PreparingHideAfterMS int64 `json:"preparing_hide_after_ms,omitempty"`
}

type submitLeadRequest struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,max=320"`
	CountryCode string `json:"country_code" validate:"max=8"`
	Phone       string `json:"phone" validate:"required,max=32"`
}

type submitLeadResponse struct {
	Step         string `json:"step"`
	LeadID       string `json:"lead_id"`
	PhoneUpdated bool   `json:"phone_updated,omitempty"`
}

type billingPrefillResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type paymentBindingResponse struct {
	IntentID          string                 `json:"intent_id"`
	ClientSecret      string                 `json:"client_secret"`
	AmountCents       int64                  `json:"amount_cents"`
	Currency          string                 `json:"currency"`
	Locale            string                 `json:"locale"`
	Prefill           billingPrefillResponse `json:"prefill"`
	HideBillingFields bool                   `json:"hide_billing_fields"`
	Prewarmed         bool                   `json:"prewarmed"`
}

type confirmRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,max=128"`
}

type confirmResponse struct {
	Outcome         string `json:"outcome"`
	TransactionID   string `json:"transaction_id,omitempty"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	RedirectDelayMS int64  `json:"redirect_delay_ms,omitempty"`
}
