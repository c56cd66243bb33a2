// Package errors provides the standardized error type shared by the API, the services and the workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Validation errors: caught before any side effect, surfaced next to the offending field.
const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeReasonRequired     ErrorCode = "REJECTION_REASON_REQUIRED"
	ErrCodeOTPRequired        ErrorCode = "OTP_REQUIRED"
	ErrCodeInvalidAppointment ErrorCode = "INVALID_APPOINTMENT_DATE"
	ErrCodeOfficerRequired    ErrorCode = "OFFICER_IDENTITY_REQUIRED"
)

// Authentication errors.
const (
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeInvalidCredentials   ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired       ErrorCode = "SESSION_EXPIRED"
)

// Authorization errors.
const (
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeNotActionable ErrorCode = "STAGE_NOT_ACTIONABLE"
)

// Action errors: the backend refused the approve/reject/verify call.
const (
	ErrCodeOTPInvalid    ErrorCode = "OTP_INVALID"
	ErrCodeOTPExpired    ErrorCode = "OTP_EXPIRED"
	ErrCodeOTPCooldown   ErrorCode = "OTP_RESEND_COOLDOWN"
	ErrCodeStageConflict ErrorCode = "STAGE_CONFLICT"
	ErrCodeActionFailed  ErrorCode = "ACTION_FAILED"
)

// Not-found and technical errors.
const (
	ErrCodeNotFound                 ErrorCode = "NOT_FOUND"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeNotificationSendFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// Category groups codes into the taxonomy the API and the client react to.
type Category string

const (
	CategoryValidation     Category = "VALIDATION"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryAuthorization  Category = "AUTHORIZATION"
	CategoryAction         Category = "ACTION"
	CategoryNotFound       Category = "NOT_FOUND"
	CategoryInternal       Category = "INTERNAL"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key to the error's metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidationError creates a validation error carrying the offending fields.
func NewValidationError(message string, fields ...FieldError) *StandardError {
	err := newError(ErrCodeValidationFailed, message, "", false)
	if len(fields) > 0 {
		err.WithMetadata("fields", fields)
	}
	return err
}

func NewReasonRequiredError() *StandardError {
	return newError(ErrCodeReasonRequired, "A rejection reason is required", "", false)
}

func NewOTPRequiredError() *StandardError {
	return newError(ErrCodeOTPRequired, "OTP is required", "", false)
}

func NewInvalidAppointmentError(details string) *StandardError {
	return newError(ErrCodeInvalidAppointment, "Appointment date must be a future weekday", details, false)
}

func NewOfficerRequiredError() *StandardError {
	return newError(ErrCodeOfficerRequired, "Officer identity is required", "", false)
}

// NewAuthenticationError creates a non-retryable authentication error.
func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthenticationFailed, "Authentication failed", details, false)
}

// NewInvalidCredentialsError never says which field was wrong.
func NewInvalidCredentialsError() *StandardError {
	return newError(ErrCodeInvalidCredentials, "Invalid credentials", "", false)
}

func NewSessionExpiredError() *StandardError {
	return newError(ErrCodeSessionExpired, "Session expired", "", false)
}

func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Access denied", details, false)
}

func NewNotActionableError(details string) *StandardError {
	return newError(ErrCodeNotActionable, "Application is not pending for this officer", details, false)
}

func NewOTPInvalidError() *StandardError {
	return newError(ErrCodeOTPInvalid, "Invalid OTP", "", false)
}

func NewOTPExpiredError() *StandardError {
	return newError(ErrCodeOTPExpired, "OTP expired or already used, request a new code", "", false)
}

func NewOTPCooldownError(retryAfter time.Duration) *StandardError {
	return newError(ErrCodeOTPCooldown, "Please wait before requesting a new code", "", true).
		WithMetadata("retryAfterSeconds", int(retryAfter.Round(time.Second).Seconds()))
}

func NewStageConflictError(details string) *StandardError {
	return newError(ErrCodeStageConflict, "Application stage changed, refresh and retry", details, false)
}

func NewActionFailedError(details string) *StandardError {
	return newError(ErrCodeActionFailed, "Action could not be applied", details, false)
}

func NewResourceNotFoundError(resource, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), details, false)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert failed", err.Error(), true)
}

func NewSearchQueryFailedError(err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search query failed", err.Error(), true)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification send failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("%s unavailable", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s timed out", service), err.Error(), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 3. Classification
// ==========================

// As extracts a StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// Normalize always returns a StandardError, wrapping foreign errors as internal.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// GetErrorCategory returns the taxonomy bucket of the error code.
func GetErrorCategory(code ErrorCode) Category {
	switch code {
	case ErrCodeValidationFailed, ErrCodeReasonRequired, ErrCodeOTPRequired,
		ErrCodeInvalidAppointment, ErrCodeOfficerRequired:
		return CategoryValidation
	case ErrCodeAuthenticationFailed, ErrCodeInvalidCredentials, ErrCodeSessionExpired:
		return CategoryAuthentication
	case ErrCodeForbidden, ErrCodeNotActionable:
		return CategoryAuthorization
	case ErrCodeOTPInvalid, ErrCodeOTPExpired, ErrCodeOTPCooldown,
		ErrCodeStageConflict, ErrCodeActionFailed:
		return CategoryAction
	case ErrCodeNotFound:
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// HTTPStatus maps an error to the response status the API returns.
func HTTPStatus(err error) int {
	stdErr := Normalize(err)
	switch stdErr.Code {
	case ErrCodeOTPCooldown:
		return http.StatusTooManyRequests
	case ErrCodeStageConflict:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeExternalService:
		return http.StatusServiceUnavailable
	}

	switch GetErrorCategory(stdErr.Code) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuthentication:
		return http.StatusUnauthorized
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategoryAction:
		return http.StatusUnprocessableEntity
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeExternalService:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}
