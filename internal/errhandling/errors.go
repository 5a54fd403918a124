// Package errhandling provides error classification, transport status mapping
// and retry utilities shared by the generator, the input modules and the
// HTTP API.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrorCategory represents the type/category of an error.
// Categories help determine the appropriate error handling strategy.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryNetwork represents network-related errors (timeout, connection refused, DNS).
	// Network errors are typically transient and retryable.
	CategoryNetwork ErrorCategory = "network"

	// CategoryAuthentication represents authentication errors (401, 403).
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryValidation represents validation errors (400, 422 and other 4xx).
	CategoryValidation ErrorCategory = "validation"

	// CategoryRateLimit represents rate limiting errors (429).
	// Rate limit errors are transient and should be retried with backoff.
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryServer represents server errors (5xx).
	CategoryServer ErrorCategory = "server"

	// CategoryNotFound represents not found errors (404).
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryUnknown represents unclassified errors. They are retryable.
	CategoryUnknown ErrorCategory = "unknown"
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether the error is transient and can be retried.
	Retryable bool

	// StatusCode is the HTTP status code (0 if not an HTTP error).
	StatusCode int

	// Message is a human-readable error message.
	Message string

	// RetryAfter is the server-provided wait hint (0 if none).
	RetryAfter time.Duration

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

type statusClass struct {
	category  ErrorCategory
	retryable bool
	message   string
}

var knownStatuses = map[int]statusClass{
	http.StatusBadRequest:          {CategoryValidation, false, "bad request"},
	http.StatusUnauthorized:        {CategoryAuthentication, false, "unauthorized"},
	http.StatusForbidden:           {CategoryAuthentication, false, "forbidden"},
	http.StatusNotFound:            {CategoryNotFound, false, "not found"},
	http.StatusRequestTimeout:      {CategoryNetwork, true, "request timeout"},
	http.StatusUnprocessableEntity: {CategoryValidation, false, "unprocessable entity"},
	http.StatusTooManyRequests:     {CategoryRateLimit, true, "rate limited"},
	http.StatusInternalServerError: {CategoryServer, true, "internal server error"},
	http.StatusBadGateway:          {CategoryServer, true, "bad gateway"},
	http.StatusServiceUnavailable:  {CategoryServer, true, "service unavailable"},
	http.StatusGatewayTimeout:      {CategoryServer, true, "gateway timeout"},
}

// ClassifyHTTPStatus classifies an HTTP error based on status code.
//
// Classification rules:
//   - 401, 403: Authentication errors (not retryable)
//   - 400, 422, other 4xx: Validation errors (not retryable)
//   - 404: Not found errors (not retryable)
//   - 408: Network timeout (retryable)
//   - 429: Rate limit errors (retryable)
//   - 5xx: Server errors (retryable)
//   - Anything else: CategoryUnknown (retryable)
//
// A non-empty message is appended to the default description.
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	class, ok := knownStatuses[statusCode]
	switch {
	case ok:
	case statusCode >= 500:
		class = statusClass{CategoryServer, true, "server error"}
	case statusCode >= 400:
		class = statusClass{CategoryValidation, false, "client error"}
	default:
		class = statusClass{CategoryUnknown, true, "unexpected status"}
	}

	msg := class.message
	if message = strings.TrimSpace(message); message != "" {
		msg = msg + ": " + message
	}
	return &ClassifiedError{
		Category:   class.category,
		Retryable:  class.retryable,
		StatusCode: statusCode,
		Message:    msg,
	}
}

// ClassifyHTTPResponse classifies a non-2xx response, reading the Retry-After
// header when present. body is a short excerpt of the response body.
func ClassifyHTTPResponse(resp *http.Response, body string) *ClassifiedError {
	classified := ClassifyHTTPStatus(resp.StatusCode, body)
	classified.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	return classified
}

// ParseRetryAfter parses a Retry-After header in seconds or HTTP-date form.
// It returns 0 for empty, invalid or past values.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// ClassifyNetworkError classifies a network-related error.
//
// Classification rules:
//   - Deadline exceeded or Timeout(): Network category (retryable)
//   - Context canceled: Network category (not retryable)
//   - net.OpError, DNS errors, URL errors: Network category (retryable)
//   - Anything else: Unknown category (retryable)
func ClassifyNetworkError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError("request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Retryable:   false,
			Message:     "context canceled",
			OriginalErr: err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewNetworkError(fmt.Sprintf("network error: %s %s", opErr.Op, opErr.Net), err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewNetworkError(fmt.Sprintf("DNS error: %s", dnsErr.Name), err)
	}

	type timeoutError interface {
		Timeout() bool
	}
	var timeoutErr timeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return NewNetworkError("timeout", err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewNetworkError(fmt.Sprintf("URL error: %s %s", urlErr.Op, urlErr.URL), err)
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Retryable:   true,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned as-is.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return &ClassifiedError{
			Category:    CategoryValidation,
			Retryable:   false,
			Message:     err.Error(),
			OriginalErr: err,
		}
	}

	return ClassifyNetworkError(err)
}

// IsRetryable returns true if the error is classified as retryable.
// Nil errors return false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsFatal returns true if the error is classified as fatal.
// Fatal categories: Authentication, Validation, NotFound.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorCategory(err) {
	case CategoryAuthentication, CategoryValidation, CategoryNotFound:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategoryUnknown
}

// PermanentError marks an error that must never be retried, whatever its cause.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retry executor stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// NewNetworkError creates a ClassifiedError for network errors.
func NewNetworkError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryNetwork,
		Retryable:   true,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// NewValidationError creates a ClassifiedError for validation errors.
func NewValidationError(statusCode int, message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryValidation,
		Retryable:   false,
		StatusCode:  statusCode,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// =============================================================================
// Transport status mapping
// =============================================================================

// StatusCoder is implemented by domain errors that know which HTTP status the
// transport should answer with.
type StatusCoder interface {
	HTTPStatus() int
}

// HTTPStatusFor returns the transport status for err: the status of the first
// StatusCoder in the chain, 413 for oversized bodies, otherwise 500.
func HTTPStatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
