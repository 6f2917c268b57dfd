package api

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/errors"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/google/uuid"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client wraps the Drive API with retry logic
type Client struct {
	service    *drive.Service
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, maxRetries int, retryDelayMs int, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Client{
		service:    service,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		logger:     logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(profile string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Profile:         profile,
		InvolvedFileIDs: []string{},
		RequestType:     requestType,
		TraceID:         uuid.New().String(),
	}
}

// Derive returns a copy of reqCtx with the same trace ID for another call
func Derive(reqCtx *types.RequestContext, requestType types.RequestType, fileIDs ...string) *types.RequestContext {
	return &types.RequestContext{
		Profile:         reqCtx.Profile,
		InvolvedFileIDs: append([]string{}, fileIDs...),
		RequestType:     requestType,
		TraceID:         reqCtx.TraceID,
	}
}

// ExecuteWithRetry executes an API call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("fileIds", reqCtx.InvolvedFileIDs),
	)

	start := time.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying API operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", client.maxRetries),
			)
		}

		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("API operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if !isRetryable(lastErr) {
			logger.Error("API operation failed (non-retryable)",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, classifyError(lastErr, reqCtx, client.logger)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, classifyError(lastErr, reqCtx, client.logger)
}

// isRetryable reports whether err is a throttling, server-side or
// network failure
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		case 403:
			for _, e := range apiErr.Errors {
				if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
					return true
				}
			}
		}
		return false
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Header != nil {
		// Google sends Retry-After as seconds
		if seconds, convErr := strconv.Atoi(apiErr.Header.Get("Retry-After")); convErr == nil && seconds >= 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > maxDelay {
				return maxDelay
			}
			return delay
		}
	}

	// Exponential backoff: base * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Jitter of +/-25%
	if jitterRange := delay / 4; jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay += jitter
	}

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// fallbackCode is the error code for failures the HTTP status does not explain
func fallbackCode(requestType types.RequestType) string {
	switch requestType {
	case types.RequestTypeListOrSearch:
		return utils.ErrCodeListingFailed
	case types.RequestTypeDownload, types.RequestTypeExport:
		return utils.ErrCodeDownloadFailed
	case types.RequestTypeAuthorize:
		return utils.ErrCodeAuthenticationFailed
	default:
		return utils.ErrCodeUnknown
	}
}

// classifyError converts API errors to CLI errors
func classifyError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return errors.ClassifyGoogleAPIError(err, reqCtx, fallbackCode(reqCtx.RequestType), logger)
}

// Service returns the underlying Drive service
func (c *Client) Service() *drive.Service {
	return c.service
}
