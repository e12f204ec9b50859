// Package errors provides the categorized error type used throughout the
// review engine. Errors carry a category, a severity and a retryability flag
// so stage and run boundaries can decide how to persist and report them.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory classifies where in the system an error originated.
type ErrorCategory string

const (
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryStorage    ErrorCategory = "storage"
	CategoryDatabase   ErrorCategory = "database"
	CategoryConvert    ErrorCategory = "convert"
	CategoryParse      ErrorCategory = "parse"
	CategoryAlign      ErrorCategory = "align"
	CategoryAI         ErrorCategory = "ai"
	CategoryExport     ErrorCategory = "export"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how the caller should react.
type ErrorSeverity string

const (
	SeverityWarning ErrorSeverity = "warning"
	SeverityError   ErrorSeverity = "error"
	SeverityFatal   ErrorSeverity = "fatal"
)

// ReviewError is the structured error type for the review engine.
type ReviewError struct {
	Category  ErrorCategory
	Severity  ErrorSeverity
	Message   string
	Cause     error
	Retryable bool
	Context   map[string]any
}

func (e *ReviewError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Severity, e.Message)
}

func (e *ReviewError) Unwrap() error { return e.Cause }

// WithContext attaches a key/value pair for structured logging.
func (e *ReviewError) WithContext(key string, value any) *ReviewError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable overrides the default retryability of the category.
func (e *ReviewError) WithRetryable(retryable bool) *ReviewError {
	e.Retryable = retryable
	return e
}

// New creates a ReviewError without a cause.
func New(category ErrorCategory, severity ErrorSeverity, message string) *ReviewError {
	return &ReviewError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: defaultRetryable(category),
	}
}

// Wrap creates a ReviewError wrapping a cause.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ReviewError {
	return &ReviewError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: defaultRetryable(category),
	}
}

// Newf creates a ReviewError with a formatted message.
func Newf(category ErrorCategory, severity ErrorSeverity, format string, args ...any) *ReviewError {
	return New(category, severity, fmt.Sprintf(format, args...))
}

func defaultRetryable(category ErrorCategory) bool {
	switch category {
	case CategoryStorage, CategoryAI:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err (or any wrapped cause) is retryable.
func IsRetryable(err error) bool {
	var re *ReviewError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory returns the category of err, or CategoryInternal when err is
// not a ReviewError.
func GetCategory(err error) ErrorCategory {
	var re *ReviewError
	if stderrors.As(err, &re) {
		return re.Category
	}
	return CategoryInternal
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, category ErrorCategory) bool {
	return GetCategory(err) == category
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// Truncate shortens an error message for persistence in a status row.
func Truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	r := []rune(msg)
	if len(r) <= max {
		return msg
	}
	return string(r[:max])
}
