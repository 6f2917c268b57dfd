package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/dl-alexandre/gdbackup/pkg/version"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const tokenRefreshBuffer = 5 * time.Minute

// Options configures a Manager
type Options struct {
	KeyFile         string
	Scopes          []string
	ImpersonateUser string
	// ResponseTimeout bounds the wait for response headers of each API
	// call. Bodies stream without a deadline.
	ResponseTimeout time.Duration
	Logger          logging.Logger
}

// Manager authorizes the service account and hands out Drive clients
type Manager struct {
	source      oauth2.TokenSource
	email       string
	impersonate string
	timeout     time.Duration
	clock       clockwork.Clock
	logger      logging.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewManager loads the service account key. Failures are AUTHENTICATION_FAILED.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if err := ValidateScopes(opts.Scopes); err != nil {
		return nil, authError(err.Error(), err)
	}
	creds, saKey, err := LoadServiceAccount(ctx, opts.KeyFile, opts.Scopes, opts.ImpersonateUser)
	if err != nil {
		return nil, authError(err.Error(), err)
	}

	mgr := newManager(creds.TokenSource, clockwork.NewRealClock(), opts.Logger)
	mgr.email = saKey.ClientEmail
	mgr.impersonate = opts.ImpersonateUser
	mgr.timeout = opts.ResponseTimeout
	return mgr, nil
}

func newManager(source oauth2.TokenSource, clock clockwork.Clock, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{
		source: source,
		clock:  clock,
		logger: logger,
	}
}

// Authorize performs the token handshake. A token that is still comfortably
// valid is reused.
func (m *Manager) Authorize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && !m.NeedsRefresh(m.token) {
		return nil
	}

	token, err := m.source.Token()
	if err != nil {
		m.token = nil
		m.logger.Warn("Service account authorization failed", logging.F("error", err))
		return authError("failed to obtain service account token", err)
	}
	m.token = token
	m.logger.Debug("Service account authorized",
		logging.F("account", m.email),
		logging.F("expiry", token.Expiry.UTC().Format(time.RFC3339)))
	return nil
}

// NeedsRefresh reports whether token expires within the refresh buffer
func (m *Manager) NeedsRefresh(token *oauth2.Token) bool {
	if token.Expiry.IsZero() {
		return false
	}
	return m.clock.Now().Add(tokenRefreshBuffer).After(token.Expiry)
}

// HTTPClient returns a client that attaches service account tokens
func (m *Manager) HTTPClient(ctx context.Context) *http.Client {
	if m.timeout > 0 {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = m.timeout
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
	}
	return oauth2.NewClient(ctx, m.source)
}

// DriveService creates a Drive API service bound to the service account
func (m *Manager) DriveService(ctx context.Context) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(m.HTTPClient(ctx)))
	if err != nil {
		return nil, authError("failed to create Drive service", err)
	}
	svc.UserAgent = version.Get().UserAgent()
	return svc, nil
}

// ServiceAccountEmail returns the client_email of the key
func (m *Manager) ServiceAccountEmail() string {
	return m.email
}

// ImpersonatedUser returns the delegated subject, if any
func (m *Manager) ImpersonatedUser() string {
	return m.impersonate
}

func authError(msg string, cause error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthenticationFailed, msg).
		WithContext("suggestedAction", "check serviceAccountKeyFile and that the account can reach the Drive API").
		Build(), cause)
}
