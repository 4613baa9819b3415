package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorType string

const (
	ErrAuthorization   ErrorType = "AUTHORIZATION"
	ErrUnauthenticated ErrorType = "UNAUTHENTICATED"
	ErrValidation      ErrorType = "VALIDATION"
	// ErrTemporal marks "not yet" conditions. Callers may retry later.
	ErrTemporal ErrorType = "TEMPORAL"
	ErrExternal ErrorType = "EXTERNAL_DEPENDENCY"
	ErrConflict ErrorType = "CONFLICT"
	ErrNotFound ErrorType = "NOT_FOUND"
	ErrReadOnly ErrorType = "READ_ONLY"
	// ErrUnavailable means a backing store could not be reached.
	ErrUnavailable ErrorType = "UNAVAILABLE"
	ErrInternal ErrorType = "INTERNAL_ERROR"
)

// Code names the precise precondition that failed.
type Code string

const (
	CodeMissingCapability     Code = "MISSING_CAPABILITY"
	CodeInvalidAPIKey         Code = "INVALID_API_KEY"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInvalidSource         Code = "INVALID_SOURCE"
	CodeInvalidConfig         Code = "INVALID_CONFIG"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeCooldownActive        Code = "COOLDOWN_ACTIVE"
	CodeInsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	CodeNothingToDistribute   Code = "NOTHING_TO_DISTRIBUTE"
	CodeRebalanceNotNeeded    Code = "REBALANCE_NOT_NEEDED"
	CodeBelowMinAdjustment    Code = "BELOW_MIN_ADJUSTMENT"
	CodeEmergencyNotTriggered Code = "EMERGENCY_NOT_TRIGGERED"
	CodeOracleError           Code = "ORACLE_ERROR"
	CodeExecutionFailed       Code = "EXECUTION_FAILED"
	CodeLiquidityMoveFailed   Code = "LIQUIDITY_MOVE_FAILED"
	CodeStateConflict         Code = "STATE_CONFLICT"
	CodeInvariantViolation    Code = "INVARIANT_VIOLATION"
	CodeNotFound              Code = "NOT_FOUND"
	CodeReadOnly              Code = "READ_ONLY"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
	CodeInternal              Code = "INTERNAL"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType     `json:"type"`
	Code       Code          `json:"code"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
	HTTPStatus int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithRetryAfter records how long a temporal condition is expected to last.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

func New(errType ErrorType, code Code, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Unauthorized(role string) *AppError {
	return New(ErrAuthorization, CodeMissingCapability, "caller lacks capability "+role, nil)
}

func Invalid(code Code, msg string) *AppError {
	return New(ErrValidation, code, msg, nil)
}

func NotYet(code Code, msg string) *AppError {
	return New(ErrTemporal, code, msg, nil)
}

func External(code Code, msg string, cause error) *AppError {
	return New(ErrExternal, code, msg, cause)
}

func Conflict(msg string) *AppError {
	return New(ErrConflict, CodeStateConflict, msg, nil)
}

func NotFound(msg string) *AppError {
	return New(ErrNotFound, CodeNotFound, msg, nil)
}

func Internal(msg string, cause error) *AppError {
	return New(ErrInternal, CodeInternal, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err.Error(), err)
}

// IsType reports whether err carries the given type anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

func IsTemporal(err error) bool {
	return IsType(err, ErrTemporal)
}

// CodeOf returns the precise code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrAuthorization:
		return http.StatusForbidden
	case ErrTemporal, ErrConflict:
		return http.StatusConflict
	case ErrReadOnly, ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	case ErrExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrValidation:
		return "Correct the request and resend."
	case ErrAuthorization:
		return "Ask an admin to grant the required role."
	case ErrUnauthenticated:
		return "Check the API key."
	case ErrTemporal:
		return "Not yet possible. Retry later."
	case ErrExternal:
		return "Upstream dependency failed. Retry the call."
	case ErrConflict:
		return "Retry the request."
	case ErrReadOnly:
		return "Wait for read-only mode to be lifted."
	case ErrUnavailable:
		return "Storage is temporarily unavailable. Retry shortly."
	default:
		return ""
	}
}
