package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

type countingSource struct {
	calls  int
	expiry time.Time
	err    error
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: "ya29.test", Expiry: s.expiry}, nil
}

func TestManager_NeedsRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr := newManager(&countingSource{}, clock, nil)

	tests := []struct {
		name     string
		expiry   time.Time
		expected bool
	}{
		{"Expired token", clock.Now().Add(-1 * time.Hour), true},
		{"Expiring soon (within 5 min)", clock.Now().Add(3 * time.Minute), true},
		{"Valid token", clock.Now().Add(1 * time.Hour), false},
		{"No expiry", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mgr.NeedsRefresh(&oauth2.Token{Expiry: tt.expiry})
			if got != tt.expected {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestManager_AuthorizeReusesValidToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &countingSource{expiry: clock.Now().Add(time.Hour)}
	mgr := newManager(source, clock, nil)

	for i := 0; i < 3; i++ {
		if err := mgr.Authorize(context.Background()); err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
	}
	if source.calls != 1 {
		t.Errorf("expected a single token fetch, got %d", source.calls)
	}

	clock.Advance(58 * time.Minute)
	if err := mgr.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected a refresh near expiry, got %d fetches", source.calls)
	}
}

func TestManager_AuthorizeFailure(t *testing.T) {
	source := &countingSource{err: errors.New("invalid_grant")}
	mgr := newManager(source, clockwork.NewFakeClock(), nil)

	err := mgr.Authorize(context.Background())
	if !utils.HasCode(err, utils.ErrCodeAuthenticationFailed) {
		t.Fatalf("expected AUTHENTICATION_FAILED, got %v", err)
	}
	if !errors.Is(err, source.err) {
		t.Error("authorization error should wrap the token source error")
	}

	// Failures are not cached
	mgr.Authorize(context.Background())
	if source.calls != 2 {
		t.Errorf("expected a retry after failure, got %d fetches", source.calls)
	}
}

func TestManager_AuthorizeCancelled(t *testing.T) {
	source := &countingSource{}
	mgr := newManager(source, clockwork.NewFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := mgr.Authorize(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if source.calls != 0 {
		t.Error("no token should be fetched for a cancelled context")
	}
}

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"readonly", []string{utils.ScopeReadonly}, false},
		{"full", []string{utils.ScopeMetadataReadonly, utils.ScopeFull}, false},
		{"metadata only", []string{utils.ScopeMetadataReadonly}, true},
		{"none", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScopes(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopes(%v) error = %v, wantErr %v", tt.scopes, err, tt.wantErr)
			}
		})
	}
}

func TestParseServiceAccountKey(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"valid", `{"type":"service_account","client_email":"sa@p.iam.gserviceaccount.com","private_key":"k"}`, ""},
		{"not json", `{`, "failed to parse"},
		{"user credentials", `{"type":"authorized_user"}`, "invalid service account key type"},
		{"no email", `{"type":"service_account","private_key":"k"}`, "client_email"},
		{"no key", `{"type":"service_account","client_email":"sa@p"}`, "private_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseServiceAccountKey([]byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if key.ClientEmail != "sa@p.iam.gserviceaccount.com" {
					t.Errorf("ClientEmail = %s", key.ClientEmail)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewManager_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	userCreds := filepath.Join(dir, "user.json")
	if err := os.WriteFile(userCreds, []byte(`{"type":"authorized_user"}`), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts Options
	}{
		{"no key file", Options{Scopes: []string{utils.ScopeReadonly}}},
		{"missing key file", Options{KeyFile: filepath.Join(dir, "missing.json"), Scopes: []string{utils.ScopeReadonly}}},
		{"wrong key type", Options{KeyFile: userCreds, Scopes: []string{utils.ScopeReadonly}}},
		{"bad subject", Options{KeyFile: userCreds, Scopes: []string{utils.ScopeReadonly}, ImpersonateUser: "admin"}},
		{"metadata scope", Options{KeyFile: userCreds, Scopes: []string{utils.ScopeMetadataReadonly}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(context.Background(), tt.opts)
			if !utils.HasCode(err, utils.ErrCodeAuthenticationFailed) {
				t.Errorf("expected AUTHENTICATION_FAILED, got %v", err)
			}
		})
	}
}

func TestManager_HTTPClientResponseTimeout(t *testing.T) {
	mgr := newManager(&countingSource{}, clockwork.NewFakeClock(), nil)
	mgr.timeout = 7 * time.Second

	client := mgr.HTTPClient(context.Background())
	tr, ok := client.Transport.(*oauth2.Transport)
	if !ok {
		t.Fatalf("expected *oauth2.Transport, got %T", client.Transport)
	}
	base, ok := tr.Base.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport base, got %T", tr.Base)
	}
	if base.ResponseHeaderTimeout != 7*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 7s", base.ResponseHeaderTimeout)
	}
	if client.Timeout != 0 {
		t.Errorf("client timeout must stay unset so downloads can stream, got %v", client.Timeout)
	}
}
