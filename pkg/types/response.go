// Package types holds the JSON envelopes every API response is wrapped in.
package types

// SuccessEnvelope wraps a successful payload as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps a failure as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError is the public face of a failed request. Details only carries
// data the error code allows to leave the server.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
