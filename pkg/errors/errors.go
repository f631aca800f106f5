// Package errors defines the typed error taxonomy used across the
// reconciliation service.
//
// Every error surfaced to a caller belongs to a category (file, parse,
// auth, network, ...) and carries a specific code, an optional
// suggestion for fixing the problem, and free-form context. Categories
// map to process exit codes so scripted callers can distinguish a bad
// upload from an expired portal session.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by the subsystem that produced them.
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryNetwork        ErrorCategory = "network"
	CategoryAuth           ErrorCategory = "auth"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category.
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Parse errors
	CodeInvalidFormat     ErrorCode = "invalid_format"
	CodeMissingColumn     ErrorCode = "missing_column"
	CodeInvalidData       ErrorCode = "invalid_data"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeInvalidGSTIN  ErrorCode = "invalid_gstin"
	CodeMissingField  ErrorCode = "missing_field"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"
	CodeInvalidPeriod ErrorCode = "invalid_period"

	// Reconciliation errors
	CodeMatchingFailed  ErrorCode = "matching_failed"
	CodeIncompleteData  ErrorCode = "incomplete_data"
	CodeProcessingError ErrorCode = "processing_error"

	// Network errors
	CodeConnectionFailed   ErrorCode = "connection_failed"
	CodeTimeout            ErrorCode = "timeout"
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeServiceUnavailable ErrorCode = "service_unavailable"

	// Auth errors
	CodeSessionNotFound    ErrorCode = "session_not_found"
	CodeSessionExpired     ErrorCode = "session_expired"
	CodeSessionNotVerified ErrorCode = "session_not_verified"
	CodeOTPRejected        ErrorCode = "otp_rejected"
	CodeTokenInvalid       ErrorCode = "token_invalid"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconError is the error type surfaced at every component boundary.
type ReconError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries additional key/value information about an error.
type Context map[string]interface{}

func (e *ReconError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *ReconError) Unwrap() error {
	return e.Cause
}

// GetExitCode maps the error category to a process exit code.
func (e *ReconError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryNetwork:
		return 6
	case CategoryAuth:
		return 7
	default:
		return 1
	}
}

// WithContext attaches a key/value pair to the error.
func (e *ReconError) WithContext(key string, value interface{}) *ReconError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches a remediation hint to the error.
func (e *ReconError) WithSuggestion(suggestion string) *ReconError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new ReconError with a captured stack trace.
func New(category ErrorCategory, code ErrorCode, message string) *ReconError {
	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with category, code and message.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err == nil {
		return nil
	}
	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// FileError creates a file-access error for the given path.
func FileError(code ErrorCode, path string, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check that the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	result := newOrWrap(err, CategoryFile, code, message)
	return result.WithSuggestion(suggestion).WithContext("file_path", path)
}

// ParseError creates a parse error located at a line/column of an input.
func ParseError(code ErrorCode, source string, line int, column, value string, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in %s at line %d, column '%s': '%s'", source, line, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in %s", column, source)
		suggestion = "verify the file has all required columns with recognizable headers"
	case CodeUnsupportedFormat:
		message = fmt.Sprintf("unsupported input format: %s", source)
		suggestion = "supply a CSV upload, a portal JSON payload or extracted PDF tables"
	default:
		message = fmt.Sprintf("parse error in %s at line %d", source, line)
		suggestion = "check the file format and data integrity"
	}

	result := newOrWrap(err, CategoryParse, code, message)
	return result.WithSuggestion(suggestion).
		WithContext("source", source).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a field-level validation error.
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g. '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use a DD-MM-YYYY or YYYY-MM-DD date"
	case CodeInvalidGSTIN:
		message = fmt.Sprintf("invalid GSTIN in field '%s': %v", field, value)
		suggestion = "a GSTIN is 15 characters (e.g. 27AAAAA0000A1Z5)"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	result := newOrWrap(err, CategoryValidation, code, message)
	return result.WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration error for a named setting.
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeInvalidPeriod:
		message = fmt.Sprintf("invalid reconciliation period: %v", value)
		suggestion = "supply a month (April-March), a quarter (Q1-Q4) or a full fiscal year"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	result := newOrWrap(err, CategoryConfiguration, code, message)
	return result.WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates an error raised by the matching pipeline.
func ReconciliationError(code ErrorCode, operation string, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeIncompleteData:
		message = fmt.Sprintf("incomplete input data during %s", operation)
		suggestion = "re-run the fetch or allow gap periods explicitly"
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "check the input data and try again"
	default:
		message = fmt.Sprintf("reconciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	result := newOrWrap(err, CategoryReconciliation, code, message)
	return result.WithSuggestion(suggestion).WithContext("operation", operation)
}

// NetworkError creates an error for a failed portal API call.
func NetworkError(code ErrorCode, endpoint string, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeConnectionFailed:
		message = fmt.Sprintf("connection failed to %s", endpoint)
		suggestion = "check network connectivity and endpoint availability"
	case CodeTimeout:
		message = fmt.Sprintf("timeout calling %s", endpoint)
		suggestion = "increase the request timeout or check network speed"
	case CodeRateLimited:
		message = fmt.Sprintf("rate limited by %s", endpoint)
		suggestion = "reduce fetch concurrency or retry later"
	case CodeServiceUnavailable:
		message = fmt.Sprintf("service unavailable: %s", endpoint)
		suggestion = "the portal API is down; try again later"
	default:
		message = fmt.Sprintf("network error: %s", endpoint)
		suggestion = "check the network connection and try again"
	}

	result := newOrWrap(err, CategoryNetwork, code, message)
	return result.WithSuggestion(suggestion).WithContext("endpoint", endpoint)
}

// AuthError creates an authentication/session error. These are kept
// distinct from data errors so an expired session is never reported as
// an empty reconciliation.
func AuthError(code ErrorCode, detail string, err error) *ReconError {
	var message, suggestion string
	switch code {
	case CodeSessionNotFound:
		message = "portal session not found"
		suggestion = "start a new session with generate-otp"
	case CodeSessionExpired:
		message = "portal session expired"
		suggestion = "request a new OTP and verify again"
	case CodeSessionNotVerified:
		message = "portal session not verified"
		suggestion = "complete OTP verification before fetching data"
	case CodeOTPRejected:
		message = "OTP verification rejected by the portal"
		suggestion = "check the OTP and retry before it expires"
	case CodeTokenInvalid:
		message = "portal rejected the taxpayer token"
		suggestion = "re-authenticate to obtain a fresh token"
	default:
		message = "authentication failed"
		suggestion = "re-authenticate and try again"
	}
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	result := newOrWrap(err, CategoryAuth, code, message)
	return result.WithSuggestion(suggestion)
}

// InternalError creates an error for unexpected internal failures.
func InternalError(code ErrorCode, operation string, err error) *ReconError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	result := newOrWrap(err, CategoryInternal, code, message)
	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// AsReconError extracts a ReconError from an error chain.
func AsReconError(err error) (*ReconError, bool) {
	var reconErr *ReconError
	if errors.As(err, &reconErr) {
		return reconErr, true
	}
	return nil, false
}

// HasCategory reports whether err (or anything it wraps) belongs to the
// given category.
func HasCategory(err error, category ErrorCategory) bool {
	if reconErr, ok := AsReconError(err); ok {
		return reconErr.Category == category
	}
	return false
}

// WrapIfNeeded wraps err unless it already is a ReconError.
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err == nil {
		return nil
	}
	if reconErr, ok := AsReconError(err); ok {
		return reconErr
	}
	return Wrap(err, category, code, message)
}

// Summarize formats a slice of errors into a single message grouped by
// category, for log lines that report many row-level failures at once.
func Summarize(errs []*ReconError) string {
	if len(errs) == 0 {
		return "no errors"
	}
	if len(errs) == 1 {
		return errs[0].Error()
	}

	byCategory := make(map[ErrorCategory]int)
	for _, err := range errs {
		byCategory[err.Category]++
	}

	var parts []string
	for category, count := range byCategory {
		parts = append(parts, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", len(errs), strings.Join(parts, ", "))
}
