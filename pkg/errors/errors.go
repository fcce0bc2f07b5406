package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeRateLimit        ErrorType = "rate_limit"
	ErrorTypeParsing          ErrorType = "parsing"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeServerError      ErrorType = "server_error"
	ErrorTypeDownload         ErrorType = "download"
	ErrorTypeModelUnavailable ErrorType = "model_unavailable"
	ErrorTypeAnalysis         ErrorType = "analysis"
	ErrorTypeUnknown          ErrorType = "unknown"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	ErrDownloadFailed   = stderrors.New("download failed")
	ErrModelUnavailable = stderrors.New("model unavailable")
	ErrAnalysisFailed   = stderrors.New("analysis failed")
)

// Error represents a typed failure with an optional HTTP status code and cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	msg = msg + ": " + e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets typed errors match the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrDownloadFailed:
		return e.Type == ErrorTypeDownload
	case ErrModelUnavailable:
		return e.Type == ErrorTypeModelUnavailable
	case ErrAnalysisFailed:
		return e.Type == ErrorTypeAnalysis
	}
	return false
}

// New creates a typed error
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(errType ErrorType, message string, err error) *Error {
	return &Error{Type: errType, Message: message, Err: err}
}

// FromStatus maps an unexpected HTTP status to a typed error
func FromStatus(statusCode int, message string) *Error {
	errType := ErrorTypeUnknown
	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		errType = ErrorTypeNotFound
	case statusCode == http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
	case statusCode >= 500:
		errType = ErrorTypeServerError
	}
	return &Error{Type: errType, Message: message, Code: statusCode}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown if it is untyped
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeModelUnavailable:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
