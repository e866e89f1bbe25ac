package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire shape of every error the service returns. Retryable
// tells the modal whether re-submitting the same action can succeed.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
