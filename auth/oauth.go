package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultScope    = "https://www.googleapis.com/auth/drive"
)

// Config configures the OAuth2 manager.
type Config struct {
	// ClientID is the OAuth2 client ID.
	ClientID string

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// Scopes are the requested scopes.
	// Default: full drive access.
	Scopes []string

	// AuthURL overrides the provider authorization endpoint. Intended for tests.
	AuthURL string

	// TokenURL overrides the provider token endpoint. Intended for tests.
	TokenURL string

	// StateSecret signs the redirect state parameter.
	StateSecret []byte

	// StateTTL bounds how long a consent redirect remains valid.
	// Default: 10 minutes.
	StateTTL time.Duration
}

// Status describes the current authorization state.
type Status struct {
	// Authorized is true when stored credentials exist.
	Authorized bool `json:"authorized"`

	// HasRefreshToken is true when the credentials can be refreshed.
	HasRefreshToken bool `json:"has_refresh_token"`

	// Expiry is the access token expiry, zero when unknown.
	Expiry time.Time `json:"expiry,omitzero"`
}

// Manager runs the authorization-code flow and hands out refreshing token
// sources backed by a persistent store.
type Manager struct {
	oauth  oauth2.Config
	store  TokenStore
	signer *stateSigner

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewManager creates an OAuth2 manager.
func NewManager(config Config, store TokenStore) (*Manager, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, errors.New("auth: client ID and secret are required")
	}
	if len(config.StateSecret) == 0 {
		return nil, errors.New("auth: state secret is required")
	}
	if store == nil {
		return nil, errors.New("auth: token store is required")
	}

	// Apply defaults
	if len(config.Scopes) == 0 {
		config.Scopes = []string{defaultScope}
	}
	if config.AuthURL == "" {
		config.AuthURL = defaultAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.StateTTL <= 0 {
		config.StateTTL = 10 * time.Minute
	}

	return &Manager{
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthURL,
				TokenURL: config.TokenURL,
			},
		},
		store:  store,
		signer: newStateSigner(config.StateSecret, config.StateTTL),
	}, nil
}

// AuthCodeURL builds the provider consent URL with a signed state parameter.
//
// Offline access is requested so the provider issues a refresh token, and
// consent is forced because the provider only returns a refresh token on the
// first approval otherwise.
func (m *Manager) AuthCodeURL() (string, error) {
	state, err := m.signer.Sign()
	if err != nil {
		return "", err
	}
	url := m.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return url, nil
}

// HandleCallback verifies the state parameter, exchanges the authorization
// code, and persists the resulting token.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) error {
	if err := m.signer.Verify(state); err != nil {
		return err
	}
	return m.SubmitCode(ctx, code)
}

// SubmitCode exchanges a manually pasted authorization code and persists the
// resulting token. Used by the out-of-band flow where no redirect occurs.
func (m *Manager) SubmitCode(ctx context.Context, code string) error {
	if code == "" {
		return ErrCodeMissing
	}

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("auth: code exchange failed: %w", err)
	}
	if err := m.store.Save(token); err != nil {
		return err
	}

	// Drop any cached source so the next TokenSource call picks up the
	// fresh credentials.
	m.mu.Lock()
	m.source = nil
	m.mu.Unlock()
	return nil
}

// TokenSource returns a token source that refreshes expired access tokens and
// persists refreshed tokens back to the store.
//
// Returns ErrNotAuthorized when the flow has not been completed.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source != nil {
		return m.source, nil
	}

	token, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	m.source = &persistingTokenSource{
		inner: m.oauth.TokenSource(ctx, token),
		store: m.store,
		last:  token.AccessToken,
	}
	return m.source, nil
}

// Status reports whether usable credentials are stored.
func (m *Manager) Status() Status {
	token, err := m.store.Load()
	if err != nil {
		return Status{}
	}
	return Status{
		Authorized:      true,
		HasRefreshToken: token.RefreshToken != "",
		Expiry:          token.Expiry,
	}
}

// Revoke discards stored credentials. Subsequent calls require a new
// authorization flow.
func (m *Manager) Revoke() error {
	m.mu.Lock()
	m.source = nil
	m.mu.Unlock()
	return m.store.Clear()
}

// persistingTokenSource saves tokens to the store whenever the underlying
// source rotates the access token.
type persistingTokenSource struct {
	inner oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string
}

// Token returns a valid token, persisting it when refreshed.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.inner.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: token refresh failed: %w", err)
	}

	s.mu.Lock()
	rotated := token.AccessToken != s.last
	if rotated {
		s.last = token.AccessToken
	}
	s.mu.Unlock()

	if rotated {
		if err := s.store.Save(token); err != nil {
			// The token is still usable; persistence failure only costs a
			// refresh after the next restart.
			return token, nil
		}
	}
	return token, nil
}
