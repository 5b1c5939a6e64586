// Package errors provides structured error handling for wikisearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store and disk errors
//   - 3XX: Index service errors
//   - 4XX: Validation errors
//   - 5XX: Internal and job errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStore      Category = "STORE"
	CategoryIndex      Category = "INDEX"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeStoreWrite       = "ERR_202_STORE_WRITE"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"

	// Index service errors (300-399)
	ErrCodeIndexTimeout     = "ERR_301_INDEX_TIMEOUT"
	ErrCodeIndexUnavailable = "ERR_302_INDEX_UNAVAILABLE"
	ErrCodeBulkWriteFailed  = "ERR_303_BULK_WRITE_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPercent     = "ERR_402_INVALID_PERCENT"
	ErrCodeInvalidQuery       = "ERR_403_INVALID_QUERY"
	ErrCodeGenerationNotFound = "ERR_404_GENERATION_NOT_FOUND"
	ErrCodeGenerationInUse    = "ERR_405_GENERATION_IN_USE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeTransformFailed = "ERR_502_TRANSFORM_FAILED"
	ErrCodeJobRunning      = "ERR_503_JOB_RUNNING"
	ErrCodeSoftTimeLimit   = "ERR_504_SOFT_TIME_LIMIT"
	ErrCodeNotifyFailed    = "ERR_505_NOTIFY_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryIndex
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreUnavailable:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexTimeout, ErrCodeIndexUnavailable, ErrCodeNotifyFailed:
		return true
	default:
		return false
	}
}
