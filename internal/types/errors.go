package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidPlan   ErrorCode = "validation_invalid_plan"
	ErrCodeValidationInvalidURL    ErrorCode = "validation_invalid_source_url"
	ErrCodeValidationInvalidMarkup ErrorCode = "validation_invalid_markup"

	// Auth (401)
	ErrCodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_webhook_signature_invalid"

	// Permission / limits (403)
	ErrCodeTermsNotAccepted ErrorCode = "permission_terms_not_accepted"
	ErrCodeLimitProducts    ErrorCode = "limit_products_exceeded"

	// Not Found (404)
	ErrCodeNotFoundTenant  ErrorCode = "not_found_tenant"
	ErrCodeNotFoundPlan    ErrorCode = "not_found_plan"
	ErrCodeNotFoundProduct ErrorCode = "not_found_product"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamGateway     ErrorCode = "upstream_billing_gateway_unavailable"
	ErrCodeUpstreamScraper     ErrorCode = "upstream_catalog_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeBillingNeedsSync    ErrorCode = "billing_manual_sync_required"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"), strings.HasPrefix(s, "limit_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case s == string(ErrCodeBillingNeedsSync):
		return http.StatusAccepted
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller should retry the failed operation.
// Durable-store and upstream failures are retryable; validation, auth and
// quota denials are not.
func (c ErrorCode) Retryable() bool {
	s := string(c)
	return strings.HasPrefix(s, "upstream_") || s == string(ErrCodeInternalDB)
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
