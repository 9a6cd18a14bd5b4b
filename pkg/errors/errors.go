package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Every AppError built by this package wraps one of them
// so callers can match with errors.Is without caring about the code.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// kind describes how a sentinel is reported over HTTP when it reaches a
// handler without an AppError around it.
type kind struct {
	sentinel error
	status   int
	code     string
	message  string
}

var kinds = []kind{
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "resource already exists"},
	{ErrConflict, http.StatusConflict, "CONFLICT", "resource was modified concurrently, please retry"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", ""},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", "forbidden"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable"},
}

// AppError is an error with a stable code and an HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(sentinel error, status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: sentinel}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, http.StatusNotFound, "NOT_FOUND",
		fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return newError(ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS",
		fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

func InvalidInput(message string) *AppError {
	return newError(ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", message)
}

func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(message string) *AppError {
	return newError(ErrForbidden, http.StatusForbidden, "FORBIDDEN", message)
}

// Conflict creates a 409 error for a lost optimistic-concurrency race.
func Conflict(message string) *AppError {
	return newError(ErrConflict, http.StatusConflict, "CONFLICT", message)
}

// Unavailable creates a 503 error for a dependency that is not configured
// or not reachable. code lets callers tell dependencies apart.
func Unavailable(code, message string) *AppError {
	return newError(ErrServiceUnavail, http.StatusServiceUnavailable, code, message)
}

// Describe returns the status, code and client-safe message for err.
// AppErrors report their own fields; wrapped sentinels use the table above;
// anything else is an internal error.
func Describe(err error) (status int, code, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			msg := k.message
			if msg == "" {
				msg = err.Error()
			}
			return k.status, k.code, msg
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	status, _, _ := Describe(err)
	return status
}
