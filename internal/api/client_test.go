package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"google.golang.org/api/googleapi"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &googleapi.Error{Code: 429}, true},
		{"500", &googleapi.Error{Code: 500}, true},
		{"503 wrapped", fmt.Errorf("list: %w", &googleapi.Error{Code: 503}), true},
		{"404", &googleapi.Error{Code: 404}, false},
		{"403 forbidden", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "insufficientFilePermissions"}}}, false},
		{"403 rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{"network timeout", &net.OpError{Op: "read", Err: timeoutError{}}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	for attempt := 0; attempt < 4; attempt++ {
		want := base * time.Duration(1<<attempt)
		got := calculateBackoff(base, attempt, errors.New("x"))
		if got < want*3/4 || got > want*5/4 {
			t.Errorf("attempt %d: delay %v outside %v +/-25%%", attempt, got, want)
		}
	}

	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	if got := calculateBackoff(base, 20, errors.New("x")); got > maxDelay*5/4 {
		t.Errorf("delay %v should be capped near %v", got, maxDelay)
	}
}

func TestCalculateBackoff_RetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "2")
	err := &googleapi.Error{Code: 429, Header: header}

	if got := calculateBackoff(time.Millisecond, 0, err); got != 2*time.Second {
		t.Errorf("expected Retry-After to win, got %v", got)
	}

	header.Set("Retry-After", "3600")
	if got := calculateBackoff(time.Millisecond, 0, err); got != time.Duration(utils.MaxRetryDelayMs)*time.Millisecond {
		t.Errorf("expected Retry-After to be capped, got %v", got)
	}
}

func TestExecuteWithRetry(t *testing.T) {
	client := NewClient(nil, 3, 1, nil)
	reqCtx := NewRequestContext("test", types.RequestTypeListOrSearch)

	calls := 0
	got, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &googleapi.Error{Code: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestExecuteWithRetry_NonRetryable(t *testing.T) {
	client := NewClient(nil, 3, 1, nil)
	reqCtx := NewRequestContext("test", types.RequestTypeDownload)

	calls := 0
	_, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (int, error) {
		calls++
		return 0, &googleapi.Error{Code: 400, Message: "bad request"}
	})
	if calls != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", calls)
	}
	if !utils.HasCode(err, utils.ErrCodeDownloadFailed) {
		t.Errorf("expected DOWNLOAD_FAILED, got %v", err)
	}
}

func TestExecuteWithRetry_Exhausted(t *testing.T) {
	client := NewClient(nil, 2, 1, nil)
	reqCtx := NewRequestContext("test", types.RequestTypeListOrSearch)

	calls := 0
	_, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (int, error) {
		calls++
		return 0, &googleapi.Error{Code: 429}
	})
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if !utils.HasCode(err, utils.ErrCodeRateLimited) {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
}

func TestExecuteWithRetry_Cancelled(t *testing.T) {
	client := NewClient(nil, 5, 1000, nil)
	reqCtx := NewRequestContext("test", types.RequestTypeListOrSearch)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := ExecuteWithRetry(ctx, client, reqCtx, func() (int, error) {
		calls++
		cancel()
		return 0, &googleapi.Error{Code: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", calls)
	}
}

func TestFallbackCode(t *testing.T) {
	tests := map[types.RequestType]string{
		types.RequestTypeListOrSearch: utils.ErrCodeListingFailed,
		types.RequestTypeDownload:     utils.ErrCodeDownloadFailed,
		types.RequestTypeExport:       utils.ErrCodeDownloadFailed,
		types.RequestTypeAuthorize:    utils.ErrCodeAuthenticationFailed,
		types.RequestType("Other"):    utils.ErrCodeUnknown,
	}
	for requestType, want := range tests {
		if got := fallbackCode(requestType); got != want {
			t.Errorf("fallbackCode(%s) = %s, want %s", requestType, got, want)
		}
	}
}

func TestDerive(t *testing.T) {
	parent := NewRequestContext("sa@example.com", types.RequestTypeListOrSearch)
	child := Derive(parent, types.RequestTypeDownload, "file-1")

	if child.TraceID != parent.TraceID {
		t.Error("derived context should keep the trace id")
	}
	if child.RequestType != types.RequestTypeDownload || len(child.InvolvedFileIDs) != 1 {
		t.Errorf("unexpected derived context: %+v", child)
	}
}
