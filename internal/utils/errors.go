package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/gdbackup/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthFailed = 10
	// Remote errors (20-29)
	ExitListingFailed  = 20
	ExitDownloadFailed = 21
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitRateLimited  = 32
	// Hierarchy errors (40-49)
	ExitInvalidArgument      = 40
	ExitUnsupportedHierarchy = 41
	ExitCorruptHierarchy     = 42
	// Local errors (50-59)
	ExitFilesystemFailure = 50
	ExitArchiveFailed     = 51
	// Scheduling errors (60-69)
	ExitCycleInProgress = 60
	ExitStagingLocked   = 61
	// Interrupted by signal
	ExitCancelled = 130
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeListingFailed        = "LISTING_FAILED"
	ErrCodeDownloadFailed       = "DOWNLOAD_FAILED"
	ErrCodeFileNotFound         = "FILE_NOT_FOUND"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded        = "QUOTA_EXCEEDED"
	ErrCodeNetworkError         = "NETWORK_ERROR"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInvalidArgument      = "INVALID_ARGUMENT"
	ErrCodeUnsupportedHierarchy = "UNSUPPORTED_HIERARCHY"
	ErrCodeCorruptHierarchy     = "CORRUPT_HIERARCHY"
	ErrCodeFilesystemFailure    = "FILESYSTEM_FAILURE"
	ErrCodeArchiveFailed        = "ARCHIVE_FAILED"
	ErrCodeCycleInProgress      = "CYCLE_IN_PROGRESS"
	ErrCodeStagingLocked        = "STAGING_LOCKED"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeUnknown              = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithDriveReason(reason string) *CLIErrorBuilder {
	b.err.DriveReason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthenticationFailed: ExitAuthFailed,
		ErrCodeListingFailed:        ExitListingFailed,
		ErrCodeDownloadFailed:       ExitDownloadFailed,
		ErrCodeFileNotFound:         ExitDownloadFailed,
		ErrCodePermissionDenied:     ExitAuthFailed,
		ErrCodeNetworkError:         ExitNetworkError,
		ErrCodeRateLimited:          ExitRateLimited,
		ErrCodeInvalidArgument:      ExitInvalidArgument,
		ErrCodeUnsupportedHierarchy: ExitUnsupportedHierarchy,
		ErrCodeCorruptHierarchy:     ExitCorruptHierarchy,
		ErrCodeFilesystemFailure:    ExitFilesystemFailure,
		ErrCodeArchiveFailed:        ExitArchiveFailed,
		ErrCodeCycleInProgress:      ExitCycleInProgress,
		ErrCodeStagingLocked:        ExitStagingLocked,
		ErrCodeCancelled:            ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	Cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap exposes the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps the original error as its cause
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, Cause: cause}
}

// ErrorCode returns the code of the first AppError in err's chain, or ""
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an AppError with the given code
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.CLIError.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// AsCLIError converts any error into a CLIError, defaulting to UNKNOWN
func AsCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}
