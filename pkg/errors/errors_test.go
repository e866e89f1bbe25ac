package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCode(t *testing.T) {
	meta := MetadataFor(CodeGateway)
	if meta.HTTPStatus != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for gateway declines, got %d", meta.HTTPStatus)
	}
	if !meta.Retryable {
		t.Fatal("gateway declines must be retryable")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("socket closed")
	err := Wrap(CodeDependency, cause, "create intent")
	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped error must unwrap to its cause")
	}
	if As(err).Code() != CodeDependency {
		t.Fatalf("unexpected code %s", As(err).Code())
	}
}

func TestAsReturnsNilForForeignError(t *testing.T) {
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("expected nil for non-typed error")
	}
	if As(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	cause := stdErrors.New("timeout")
	err := Wrap(CodeDependency, cause, "lead capture")
	dump := Dump(err)
	if dump.Code != string(CodeDependency) {
		t.Fatalf("unexpected code %q", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
}
