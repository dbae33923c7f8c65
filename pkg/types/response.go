package types

// SuccessEnvelope wraps every successful response body except the
// provider-facing payment shapes, which are fixed by contract.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-visible error payload. Details is only populated
// for codes whose metadata allows it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError for transport.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
