// Package apperr defines the stable error-kind taxonomy shared by the host
// API, the enclave RPC boundary, and the job engine. It never wraps a
// third-party error type: the kinds are a fixed, small enum and every
// caller still builds the underlying error with fmt.Errorf("doing x: %w",
// err) chains in the teacher's style, then attaches a Kind at the boundary
// where it must be turned into an HTTP status or a retry decision.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is one of the eleven stable error kinds. Clients map Kind to
// behavior; they never see the underlying error text.
type Kind string

const (
	KindInvalidRequest       Kind = "InvalidRequest"
	KindUnauthorized         Kind = "Unauthorized"
	KindDecryptNotAuthorized Kind = "DecryptNotAuthorized"
	KindUpstreamUnavailable  Kind = "UpstreamUnavailable"
	KindProviderFailed       Kind = "ProviderFailed"
	KindContractRejected     Kind = "ContractRejected"
	KindReplayDetected       Kind = "ReplayDetected"
	KindRateLimited          Kind = "RateLimited"
	KindInternalError        Kind = "InternalError"
	KindTransient            Kind = "Transient"
	KindPermanent            Kind = "Permanent"
)

// Error is an error annotated with a stable Kind and a client-visible
// Code. Message is never shown to clients; it is for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind, client-visible code, and
// internal message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a kind and client code to an existing error.
func Wrap(kind Kind, code string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: err.Error(), Err: err}
}

// As extracts an *Error from err, following the wrap chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it carries one, else KindInternalError.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternalError
}

// HTTPStatus projects a Kind to the HTTP status the host API should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindDecryptNotAuthorized:
		return http.StatusForbidden
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindProviderFailed:
		return http.StatusBadGateway
	case KindContractRejected:
		return http.StatusUnprocessableEntity
	case KindReplayDetected:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether a job error of this kind should be retried
// by the worker with exponential backoff rather than dead-lettered
// immediately.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransient, KindUpstreamUnavailable, KindProviderFailed:
		return true
	default:
		return false
	}
}
