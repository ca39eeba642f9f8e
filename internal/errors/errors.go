package errors

import (
	stderrors "errors"
	"fmt"
)

// BuildError is the structured error type for rowbulk.
// Every failure that aborts an index build surfaces as a BuildError so the
// CLI and logs can report a stable code alongside the message.
type BuildError struct {
	// Code is the unique error code (e.g., "ERR_403_DECODE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with BuildError sentinels.
func (e *BuildError) Is(target error) bool {
	if t, ok := target.(*BuildError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *BuildError) WithDetail(key, value string) *BuildError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *BuildError) WithSuggestion(suggestion string) *BuildError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BuildError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *BuildError {
	return &BuildError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a BuildError from an existing error.
// The error's message becomes the BuildError message.
func Wrap(code string, err error) *BuildError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrSchemaInconsistent = &BuildError{Code: ErrCodeSchemaInconsistent}
	ErrUnsupportedType    = &BuildError{Code: ErrCodeUnsupportedType}
	ErrDecodeFailed       = &BuildError{Code: ErrCodeDecodeFailed}
	ErrSubmissionFailed   = &BuildError{Code: ErrCodeSubmissionFailed}
	ErrBufferExhausted    = &BuildError{Code: ErrCodeBufferExhausted}
	ErrBuildCancelled     = &BuildError{Code: ErrCodeBuildCancelled}
)

// SchemaInconsistency reports a catalog that cannot describe the scanned rows.
func SchemaInconsistency(message string, cause error) *BuildError {
	return New(ErrCodeSchemaInconsistent, message, cause)
}

// UnsupportedType reports a column type the projector has no encoding for.
func UnsupportedType(message string, cause error) *BuildError {
	return New(ErrCodeUnsupportedType, message, cause).
		WithSuggestion("exclude the column from the indexed row type or cast it to a supported type")
}

// DecodeFailure reports raw bytes that do not match the declared column type.
func DecodeFailure(message string, cause error) *BuildError {
	return New(ErrCodeDecodeFailed, message, cause)
}

// SubmissionFailure reports a backend that rejected or failed to acknowledge units.
func SubmissionFailure(message string, cause error) *BuildError {
	return New(ErrCodeSubmissionFailed, message, cause)
}

// BufferExhausted reports that a unit could not be buffered locally.
func BufferExhausted(message string, cause error) *BuildError {
	return New(ErrCodeBufferExhausted, message, cause).
		WithSuggestion("raise bulk.buffer_bytes or lower bulk.flush_bytes")
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *BuildError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *BuildError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current build.
func IsFatal(err error) bool {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first BuildError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category from the first BuildError in the chain.
func GetCategory(err error) Category {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Category
	}
	return ""
}
