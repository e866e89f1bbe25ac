package gateway

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v84"
)

func TestClassifyErrorCardDeclined(t *testing.T) {
	err := &stripe.Error{
		Type:        stripe.ErrorTypeCard,
		Code:        stripe.ErrorCodeCardDeclined,
		DeclineCode: stripe.DeclineCodeGenericDecline,
		Msg:         "Your card was declined.",
	}
	failure := ClassifyError(err)
	if failure == nil {
		t.Fatal("expected a classified failure")
	}
	if failure.Category != CategoryCardDeclined {
		t.Fatalf("unexpected category %s", failure.Category)
	}
	if failure.Code != string(stripe.DeclineCodeGenericDecline) {
		t.Fatalf("expected decline code to win, got %s", failure.Code)
	}
}

func TestClassifyErrorDeclineCodeRefinesCategory(t *testing.T) {
	cases := []struct {
		decline stripe.DeclineCode
		want    Category
	}{
		{stripe.DeclineCodeInsufficientFunds, CategoryInsufficientFunds},
		{stripe.DeclineCodeExpiredCard, CategoryExpiredCard},
		{stripe.DeclineCodeAuthenticationRequired, CategoryAuthRequired},
	}
	for _, tc := range cases {
		failure := ClassifyError(&stripe.Error{
			Type:        stripe.ErrorTypeCard,
			Code:        stripe.ErrorCodeCardDeclined,
			DeclineCode: tc.decline,
		})
		if failure == nil || failure.Category != tc.want {
			t.Fatalf("decline %s: expected %s, got %+v", tc.decline, tc.want, failure)
		}
	}
}

func TestClassifyErrorDirectCodes(t *testing.T) {
	cases := []struct {
		code stripe.ErrorCode
		want Category
	}{
		{stripe.ErrorCodeExpiredCard, CategoryExpiredCard},
		{stripe.ErrorCodeIncorrectNumber, CategoryInvalidNumber},
		{stripe.ErrorCodeInvalidNumber, CategoryInvalidNumber},
		{stripe.ErrorCodeIncorrectCVC, CategoryInvalidCVC},
		{stripe.ErrorCodeInvalidCVC, CategoryInvalidCVC},
		{stripe.ErrorCodeProcessingError, CategoryProcessingError},
	}
	for _, tc := range cases {
		failure := ClassifyError(&stripe.Error{Type: stripe.ErrorTypeCard, Code: tc.code})
		if failure == nil || failure.Category != tc.want {
			t.Fatalf("code %s: expected %s, got %+v", tc.code, tc.want, failure)
		}
	}
}

func TestClassifyErrorUnknownCardCode(t *testing.T) {
	failure := ClassifyError(&stripe.Error{
		Type: stripe.ErrorTypeCard,
		Code: stripe.ErrorCode("weird_new_code"),
		Msg:  "strange",
	})
	if failure == nil {
		t.Fatal("card errors must always classify")
	}
	if failure.Category != CategoryUnknown {
		t.Fatalf("expected unknown category, got %s", failure.Category)
	}
	if failure.RawMessage != "strange" {
		t.Fatalf("raw message must be preserved, got %q", failure.RawMessage)
	}
}

func TestClassifyErrorNonCardErrorsAreTransport(t *testing.T) {
	if ClassifyError(errors.New("dial tcp: timeout")) != nil {
		t.Fatal("plain errors must not classify as card failures")
	}
	apiErr := &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "server sad"}
	if ClassifyError(apiErr) != nil {
		t.Fatal("api errors must not classify as card failures")
	}
}
