package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request-terminating failure for the router boundary.
type Kind string

const (
	// KindParse covers ambiguous or malformed text and upstream model
	// failures. Never retried automatically by this core.
	KindParse Kind = "parse_failure"
	// KindValidation covers intents missing required fields.
	KindValidation Kind = "validation_error"
	// KindDenied covers authorization denials.
	KindDenied Kind = "authorization_denied"
	// KindExecution covers store-level failures during a statement.
	KindExecution Kind = "execution_error"
)

// RequestError is the stable error shape every terminal failure path
// reduces to before reaching the caller. The message is safe to surface
// verbatim; wrapped internals are not.
type RequestError struct {
	Kind    Kind
	Message string
	// Retryable marks upstream transport failures (network, timeout,
	// overloaded model service) as distinct from bad input. Presented
	// uniformly to the router either way.
	Retryable bool
	Err       error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// HTTPStatus maps the failure kind to its transport-level equivalent.
func (e *RequestError) HTTPStatus() int {
	switch e.Kind {
	case KindDenied:
		return http.StatusForbidden
	case KindExecution:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Parsef builds a non-retryable parse failure.
func Parsef(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindParse, Message: fmt.Sprintf(format, args...)}
}

// Upstreamf builds a retryable parse failure caused by the outbound
// model service rather than the input text.
func Upstreamf(err error, format string, args ...any) *RequestError {
	return &RequestError{Kind: KindParse, Message: fmt.Sprintf(format, args...), Retryable: true, Err: err}
}

// Validationf builds a validation failure.
func Validationf(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Denied wraps an authorization decision's reason as a terminal error.
func Denied(reason string) *RequestError {
	return &RequestError{Kind: KindDenied, Message: reason}
}

// Execf builds an execution failure wrapping the store error.
func Execf(err error, format string, args ...any) *RequestError {
	return &RequestError{Kind: KindExecution, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsRequestError extracts a RequestError from err, or wraps unknown
// errors as execution failures so raw diagnostics never leak.
func AsRequestError(err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Kind: KindExecution, Message: "internal error", Err: err}
}
