package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// Kind classifies failures. It is distinct from transaction status.
type Kind string

const (
	KindConfiguration        Kind = "configuration"
	KindInvalidProvider      Kind = "invalid_provider"
	KindInputValidation      Kind = "input_validation"
	KindRequestFailure       Kind = "provider_request_failure"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindTokenGeneration      Kind = "token_generation_failure"
	KindVerificationFailure  Kind = "transaction_verification_failure"
	KindSignatureInvalid     Kind = "signature_invalid"
	KindUnsupportedOperation Kind = "unsupported_operation"
	KindUnknown              Kind = "unknown"
)

// HTTPStatus is the status code the host HTTP layer renders for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidProvider:
		return http.StatusBadRequest
	case KindInputValidation, KindVerificationFailure:
		return http.StatusUnprocessableEntity
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindTokenGeneration, KindSignatureInvalid:
		return http.StatusUnauthorized
	case KindUnsupportedOperation:
		return http.StatusNotImplemented
	case KindRequestFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type returned by gateways and the resilience
// layer.
type Error struct {
	Kind       Kind          `json:"kind"`
	Provider   string        `json:"provider,omitempty"`
	Operation  string        `json:"operation,omitempty"`
	Code       string        `json:"code,omitempty"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"` // upstream HTTP status, when known
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("%s: %s", e.Provider, msg)
		}
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

func newError(kind Kind, provider, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Operation: op, Message: msg, Err: cause}
}

func ConfigurationError(provider, msg string) *Error {
	return newError(KindConfiguration, provider, "", msg, nil)
}

func InvalidProviderError(country, code string) *Error {
	msg := fmt.Sprintf("provider %q is not available in %q", code, country)
	switch {
	case !IsProviderSupported(code):
		msg = fmt.Sprintf("unknown provider %q", code)
	case !IsCountrySupported(country):
		msg = fmt.Sprintf("unknown country %q", country)
	}
	return &Error{
		Kind:    KindInvalidProvider,
		Code:    "provider_not_found",
		Message: msg,
	}
}

func ValidationError(provider, msg string) *Error {
	return newError(KindInputValidation, provider, "validate", msg, nil)
}

func RequestFailure(provider string, op OperationType, msg string, cause error) *Error {
	return newError(KindRequestFailure, provider, string(op), msg, cause)
}

func TokenError(provider, msg string, cause error) *Error {
	return newError(KindTokenGeneration, provider, "token", msg, cause)
}

func VerificationError(provider, msg string, cause error) *Error {
	return newError(KindVerificationFailure, provider, string(OpVerify), msg, cause)
}

func RateLimitError(key string, retryAfter time.Duration) *Error {
	e := &Error{
		Kind:       KindRateLimitExceeded,
		Provider:   key,
		RetryAfter: retryAfter,
	}
	e.Message = fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfterSeconds())
	return e
}

func SignatureError(provider string) *Error {
	return newError(KindSignatureInvalid, provider, "webhook", "invalid webhook signature", nil)
}

func UnsupportedError(provider string, op OperationType) *Error {
	return &Error{
		Kind:      KindUnsupportedOperation,
		Provider:  provider,
		Operation: string(op),
		Code:      "operation_not_supported",
		Message:   fmt.Sprintf("provider %s does not support %s", provider, op),
	}
}

const maxUpstreamBody = 512

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// UpstreamError builds a request failure from a non-2xx provider response.
func UpstreamError(provider string, op OperationType, status int, body string) *Error {
	body = truncateUTF8(body, maxUpstreamBody)
	return &Error{
		Kind:       KindRequestFailure,
		Provider:   provider,
		Operation:  string(op),
		Code:       "upstream_error",
		StatusCode: status,
		Message:    fmt.Sprintf("provider responded with HTTP %d: %s", status, body),
	}
}
