package api

import (
	"errors"
	"net/http"
	"strconv"
)

// AppError is an error with an HTTP status and a stable machine-readable kind.
type AppError struct {
	Code       int    `json:"-"`
	Kind       string `json:"code,omitempty"`
	Message    string `json:"error"`
	Details    any    `json:"details,omitempty"`
	RetryAfter int    `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrValidation     = &AppError{Code: http.StatusBadRequest, Kind: "VALIDATION_ERROR", Message: "validation error"}
	ErrShuttingDown   = &AppError{Code: http.StatusServiceUnavailable, Kind: "SHUTTING_DOWN", Message: "service is shutting down"}
	ErrQuotaDown      = &AppError{Code: http.StatusServiceUnavailable, Kind: "QUOTA_UNAVAILABLE", Message: "download limit could not be checked"}
	ErrHistoryOff     = &AppError{Code: http.StatusNotFound, Kind: "HISTORY_DISABLED", Message: "download history is not enabled"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: "VALIDATION_ERROR", Message: msg}
}

// NewDailyLimitError reports an exhausted daily quota. retryAfter is in seconds.
func NewDailyLimitError(current, limit, retryAfter int) *AppError {
	return &AppError{
		Code:       http.StatusTooManyRequests,
		Kind:       "DAILY_LIMIT_EXCEEDED",
		Message:    "daily download limit reached",
		Details:    map[string]int{"current": current, "limit": limit},
		RetryAfter: retryAfter,
	}
}

// NewQueueFullError reports a full job queue. retryAfter is in seconds.
func NewQueueFullError(retryAfter int) *AppError {
	return &AppError{
		Code:       http.StatusServiceUnavailable,
		Kind:       "QUEUE_FULL",
		Message:    "download queue is full, try again shortly",
		RetryAfter: retryAfter,
	}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
		}
		writeJSON(w, appErr.Code, Response{Error: appErr.Message, Code: appErr.Kind, Details: appErr.Details})
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
