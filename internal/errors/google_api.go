package errors

import (
	stderrors "errors"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError converts a Drive API error into an AppError.
// fallback is the code used when the HTTP status carries no more specific meaning.
func ClassifyGoogleAPIError(err error, reqCtx *types.RequestContext, fallback string, logger logging.Logger) error {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("requestType", string(reqCtx.RequestType)).
			Build(), err)
	}

	code := fallback
	var retryable bool

	switch apiErr.Code {
	case 401:
		code = utils.ErrCodeAuthenticationFailed
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "storageQuotaExceeded":
				code = utils.ErrCodeQuotaExceeded
			case "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.ErrCodeRateLimited
			}
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		retryable = apiErr.Code >= 500
	}

	logger.Error("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
	)

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType))

	if len(apiErr.Errors) > 0 {
		builder.WithDriveReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "fileNotDownloadable":
			builder.WithContext("suggestedAction", "Workspace documents must be exported, not downloaded")
		case "exportSizeLimitExceeded":
			builder.WithContext("suggestedAction", "document is too large to export; download it from the web interface")
		case "dailyLimitExceeded":
			builder.WithContext("suggestedAction", "quota will reset in 24 hours")
		}
	}

	if len(reqCtx.InvolvedFileIDs) > 0 {
		builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
	}

	if code == utils.ErrCodeAuthenticationFailed {
		builder.WithContext("suggestedAction", "check the service account key and its Drive sharing")
	}

	return utils.WrapAppError(builder.Build(), err)
}
