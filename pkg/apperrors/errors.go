// Package apperrors provides the application error taxonomy.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeInvalidFilter     = "INVALID_FILTER"
	CodeFetchFailed       = "FETCH_FAILED"
	CodeCacheCorrupt      = "CACHE_CORRUPT"
	CodeInvalidComparison = "INVALID_COMPARISON"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidFilter, CodeInvalidComparison, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFetchFailed:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// InvalidFilter reports an incomplete filter key.
func InvalidFilter(message string) *AppError {
	return New(CodeInvalidFilter, message)
}

// FetchFailed wraps a report-fetch failure for a filter signature.
func FetchFailed(signature string, err error) *AppError {
	return Wrap(CodeFetchFailed, "report fetch failed", err).WithDetail("filter", signature)
}

// CacheCorrupt wraps a decode failure of persisted cache data.
func CacheCorrupt(err error) *AppError {
	return Wrap(CodeCacheCorrupt, "persisted report cache is unreadable", err)
}

// InvalidComparison reports a comparison request outside the supported shape.
func InvalidComparison(message string) *AppError {
	return New(CodeInvalidComparison, message)
}

// InvalidRequest reports a malformed request.
func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Unavailable creates a service unavailable error.
func Unavailable(service string) *AppError {
	return New(CodeUnavailable, fmt.Sprintf("%s is unavailable", service))
}

// IsCode reports whether err (or anything it wraps) is an AppError with code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ErrorResponse is the JSON error body written by WriteError.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON error response.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes err as JSON. Errors that are not AppErrors are reported
// as a generic internal error so internal details do not leak.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		WriteJSON(w, appErr.HTTPStatus(), ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "internal server error",
		Code:  CodeInternal,
	})
}
