// Package errors provides structured error handling for rowbulk.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Local resource errors (buffers, files, locks)
//   - 3XX: Backend / network errors
//   - 4XX: Schema and data errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryResource indicates local resource errors.
	CategoryResource Category = "RESOURCE"
	// CategoryBackend indicates indexing backend errors.
	CategoryBackend Category = "BACKEND"
	// CategoryData indicates schema and row data errors.
	CategoryData Category = "DATA"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, the build must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Resource errors (200-299)
	ErrCodeBufferExhausted = "ERR_201_BUFFER_EXHAUSTED"
	ErrCodeLockHeld        = "ERR_202_LOCK_HELD"
	ErrCodeCorruptIndex    = "ERR_203_CORRUPT_INDEX"

	// Backend errors (300-399)
	ErrCodeSubmissionFailed   = "ERR_301_SUBMISSION_FAILED"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeSourceUnavailable  = "ERR_303_SOURCE_UNAVAILABLE"

	// Data errors (400-499)
	ErrCodeSchemaInconsistent = "ERR_401_SCHEMA_INCONSISTENT"
	ErrCodeUnsupportedType    = "ERR_402_UNSUPPORTED_TYPE"
	ErrCodeDecodeFailed       = "ERR_403_DECODE_FAILED"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeBuildCancelled = "ERR_502_BUILD_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryResource
	case '3':
		return CategoryBackend
	case '4':
		return CategoryData
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeSchemaInconsistent, ErrCodeUnsupportedType, ErrCodeDecodeFailed,
		ErrCodeSubmissionFailed, ErrCodeBufferExhausted, ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeBuildCancelled:
		return SeverityWarning
	}
	return SeverityError
}
