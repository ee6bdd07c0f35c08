package models

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Application error codes. Handlers map these to HTTP statuses centrally.
const (
	CodeValidationError  = "VALIDATION_ERROR"  // malformed input (400)
	CodeValidationFailed = "VALIDATION_FAILED" // submission rule violations (422)
	CodeAccessDenied     = "ACCESS_DENIED"     // actor lacks permission or ownership (403)
	CodeInvalidState     = "INVALID_STATE"     // status precondition not met (409)
	CodeConflict         = "CONFLICT"          // stale version, concurrent update (409)
	CodeNotFound         = "NOT_FOUND"         // record does not exist (404)
	CodeUnauthorized     = "UNAUTHORIZED"      // missing/invalid credentials (401)
	CodeInternal         = "INTERNAL_ERROR"    // everything else (500)
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error      string          `json:"error"`
	Code       string          `json:"code,omitempty"`
	Details    string          `json:"details,omitempty"`
	Violations []RuleViolation `json:"violations,omitempty"`
}

// RuleViolation is a single failed submission rule.
type RuleViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents a custom application error
type AppError struct {
	Code       string
	Message    string
	Violations []RuleViolation
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidationError,
		Message: message,
	}
}

// NewValidationFailedError carries the complete list of violated submission
// rules so the caller can surface every problem at once.
func NewValidationFailedError(violations []RuleViolation) *AppError {
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Message)
	}
	return &AppError{
		Code:       CodeValidationFailed,
		Message:    "Validation failed: " + strings.Join(msgs, "; "),
		Violations: violations,
	}
}

func NewAccessDeniedError(message string) *AppError {
	return &AppError{
		Code:    CodeAccessDenied,
		Message: message,
	}
}

func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: message,
	}
}

// NewConflictError signals a lost optimistic-concurrency race; the caller may
// re-read and retry.
func NewConflictError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: fmt.Sprintf("%s with ID %v was modified concurrently", resource, id),
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// HTTPStatus returns the HTTP status the error code maps to.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidationError:
		return fiber.StatusBadRequest
	case CodeValidationFailed:
		return fiber.StatusUnprocessableEntity
	case CodeAccessDenied:
		return fiber.StatusForbidden
	case CodeInvalidState, CodeConflict:
		return fiber.StatusConflict
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	if appErr, ok := err.(*AppError); ok {
		response = ErrorResponse{
			Error:      appErr.Message,
			Code:       appErr.Code,
			Violations: appErr.Violations,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
