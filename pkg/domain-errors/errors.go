// Package derrors defines coded domain errors shared across services and
// transports. Services wrap infrastructure sentinels into these; the HTTP
// layer translates codes into status codes and JSON envelopes.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are stable API surface: they appear
// verbatim in JSON error envelopes consumed by the storefront UI.
type Code string

const (
	// CodeInvalidInput covers local validation failures. No network call was
	// made on behalf of the rejected input.
	CodeInvalidInput Code = "invalid_input"

	// CodeDuplicateIdentifier means the existence guard found an account for
	// the identifier. Terminal for the attempt; the UI redirects to login.
	CodeDuplicateIdentifier Code = "duplicate_identifier"

	// Provider error subdivision. Only CodeProviderExpired regresses stage.
	CodeProviderExpired     Code = "provider_expired"
	CodeProviderInvalidCode Code = "provider_invalid_code"
	CodeProviderRateLimited Code = "provider_rate_limited"
	CodeProviderUnknown     Code = "provider_unknown"

	// CodeBackend covers existence-check or provisioning failures. During
	// provisioning the verified credential stays valid for retry.
	CodeBackend Code = "backend_error"

	// CodeRecovery means no email identifier was resolvable for a magic-link
	// return. The flow stays on the page; the draft is preserved.
	CodeRecovery Code = "recovery_error"

	CodeConflict     Code = "conflict"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"
)

// Error is a coded domain error with an operator-facing message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause chain.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything in its chain) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			break
		}
	}
	return false
}

// Is allows matching on codes with errors.Is-style call sites.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code onto an HTTP status. Unknown codes map to
// 500 so a missed mapping fails loudly in monitoring rather than silently.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeRecovery:
		return http.StatusBadRequest
	case CodeDuplicateIdentifier, CodeConflict:
		return http.StatusConflict
	case CodeProviderExpired:
		return http.StatusGone
	case CodeProviderInvalidCode:
		return http.StatusUnprocessableEntity
	case CodeProviderRateLimited:
		return http.StatusTooManyRequests
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeProviderUnknown, CodeBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
