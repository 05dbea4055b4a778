package yoto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"yotoup/internal/shared"
)

// TokenStore persists OAuth tokens between process runs.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// Auth manages Yoto OAuth tokens via the device-code flow.
//
// Uses [oauth2] for the device authorization grant and refresh-token
// exchange. Tokens are persisted through the configured [TokenStore] so a
// restart does not force a new device flow.
type Auth struct {
	config *oauth2.Config
	store  TokenStore

	mu    sync.Mutex
	token *oauth2.Token
}

// NewAuth creates an Auth for the given Yoto configuration.
//
// The store may be nil, in which case tokens live only in memory.
func NewAuth(cfg shared.YotoConfig, store TokenStore) *Auth {
	authBase := cfg.AuthBaseURL
	if authBase == "" {
		authBase = "https://login.yotoplay.com"
	}

	config := &oauth2.Config{
		ClientID: cfg.ClientID,
		Scopes:   []string{"profile", "offline_access"},
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: authBase + "/oauth/device/code",
			TokenURL:      authBase + "/oauth/token",
		},
	}

	a := &Auth{config: config, store: store}
	if store != nil {
		if token, err := store.LoadToken(); err == nil && token != nil {
			a.token = token
		}
	}
	return a
}

// Authenticated reports whether a token is available.
func (a *Auth) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != nil && a.token.AccessToken != ""
}

// SetToken installs a token directly (used by tests and session handoff).
func (a *Auth) SetToken(token *oauth2.Token) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// StartDeviceFlow requests a device code for the user to confirm in a browser.
func (a *Auth) StartDeviceFlow(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := a.config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}
	return resp, nil
}

// WaitForDeviceFlow polls the token endpoint until the user approves the
// device code, then stores the resulting token.
func (a *Auth) WaitForDeviceFlow(ctx context.Context, deviceAuth *oauth2.DeviceAuthResponse) error {
	token, err := a.config.DeviceAccessToken(ctx, deviceAuth)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	a.setAndPersist(token)
	return nil
}

// Token returns a valid access token, refreshing it first when expired.
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()

	if token == nil || token.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}
	if token.Valid() {
		return token.AccessToken, nil
	}
	return a.refresh(ctx, token)
}

// Refresh forces a refresh-token exchange regardless of expiry.
//
// Called by the client after a 401 so the retried request carries a fresh
// access token.
func (a *Auth) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()

	if token == nil {
		return "", shared.ErrNotAuthenticated
	}

	// Expire the current token so the token source performs a real exchange.
	expired := *token
	expired.Expiry = time.Now().Add(-time.Minute)
	return a.refresh(ctx, &expired)
}

func (a *Auth) refresh(ctx context.Context, token *oauth2.Token) (string, error) {
	if token.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	fresh, err := a.config.TokenSource(ctx, token).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	a.setAndPersist(fresh)
	return fresh.AccessToken, nil
}

func (a *Auth) setAndPersist(token *oauth2.Token) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()

	if a.store != nil {
		// Persistence failures leave the in-memory token usable.
		_ = a.store.SaveToken(token)
	}
}
