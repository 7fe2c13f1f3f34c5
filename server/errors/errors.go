package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries an HTTP status alongside the wrapped cause. Handlers map
// service failures through this type so status selection lives in one place.
type AppError struct {
	Code    int    `json:"status_code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
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

// StatusCode returns the HTTP status for the response.
func (e *AppError) StatusCode() int {
	return e.Code
}

// NewValidationError creates a 400 Bad Request.
func NewValidationError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Err: err}
}

// NewNotFoundError creates a 404 Not Found.
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message, Err: err}
}

// NewConflictError creates a 409 Conflict, used for transitions out of a
// terminal review state.
func NewConflictError(message string, err error) *AppError {
	return &AppError{Code: http.StatusConflict, Message: message, Err: err}
}

// NewUnavailableError creates a 503 for store or upstream outages; callers
// may retry.
func NewUnavailableError(message string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: message, Err: err}
}

// NewInternalError creates a 500; the cause goes to the logs, not the user.
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
		Err:     errors.Join(errors.New(message), err),
	}
}
