// Package apperr defines the proxy's error taxonomy. Every failure the
// request pipeline can produce maps to exactly one Error carrying the HTTP
// status for the caller and the category recorded by the secure log.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies a failure for secure-log analytics.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryPermission Category = "permission"
	CategoryRateLimit  Category = "rate_limit"
	CategoryValidation Category = "validation"
	CategoryServer     Category = "server"
	CategoryNetwork    Category = "network"
	CategoryTimeout    Category = "timeout"
)

// Error is the typed error surfaced by the proxy pipeline.
type Error struct {
	Status   int                    // HTTP status returned to the caller
	Code     string                 // machine-readable error code
	Category Category               // secure-log category
	Message  string                 // human-readable message, never body content
	Context  map[string]interface{} // optional extra fields for the envelope
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// As extracts an *Error from err, or wraps err as an internal server error.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err.Error())
}

// Authentication covers missing, invalid, revoked, and expired API keys.
func Authentication(code, message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: code, Category: CategoryAuth, Message: message}
}

// Permission covers entity/operation pairs the caller's grants do not allow.
func Permission(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "PERMISSION_DENIED", Category: CategoryPermission, Message: message}
}

// RateLimited covers per-minute and per-day ceiling violations. retryAfter is
// the number of seconds until the violated window resets.
func RateLimited(message string, retryAfter int) *Error {
	return &Error{
		Status:   http.StatusTooManyRequests,
		Code:     "RATE_LIMIT_EXCEEDED",
		Category: CategoryRateLimit,
		Message:  message,
		Context:  map[string]interface{}{"retry_after": retryAfter},
	}
}

// Validation covers malformed input: bad key structure, bad OData parameters.
func Validation(code, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Category: CategoryValidation, Message: message}
}

// Upstream covers OData error bodies returned by the SAP backend. The
// backend's status code passes through; the category is inferred from it.
func Upstream(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Category: CategorizeStatus(status), Message: message}
}

// UpstreamAuth covers identity-provider failures during token acquisition.
func UpstreamAuth(message string) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "UPSTREAM_AUTH_FAILED", Category: CategoryServer, Message: message}
}

// Network covers connection failures to the backend.
func Network(message string) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "NETWORK_ERROR", Category: CategoryNetwork, Message: message}
}

// Timeout covers deadline-exceeded downstream calls.
func Timeout(message string) *Error {
	return &Error{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Category: CategoryTimeout, Message: message}
}

// Internal covers everything that should never happen: store failures,
// corrupt credential envelopes, encryption errors.
func Internal(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Category: CategoryServer, Message: message}
}

// CategorizeStatus infers the log category for a passthrough upstream status:
// 4xx responses indicate a caller-side problem, 5xx a backend-side one.
func CategorizeStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryPermission
	case status >= 400 && status < 500:
		return CategoryValidation
	default:
		return CategoryServer
	}
}
