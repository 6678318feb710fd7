package domain

import "errors"

var (
	// ErrNetworkFailure: the webhook request could not complete or returned a non-success status.
	ErrNetworkFailure = errors.New("dialogue server unreachable")
	// ErrMalformedResponse: the webhook body is not a JSON array of fragments.
	ErrMalformedResponse = errors.New("malformed dialogue response")

	ErrBusy            = errors.New("a request is already in flight")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// ErrorKind classifies a dispatch failure for logs and telemetry.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrNetworkFailure):
		return "network"
	default:
		return "unknown"
	}
}
