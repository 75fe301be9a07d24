package spotify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/1mb-dev/listenlog/internal/logging"
)

// Credentials are the long-lived values used to mint access tokens.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenCache holds a single bearer token in memory.
//
// The cached token carries no expiry: it is used until the Web API answers
// 401 and the caller forces a Refresh.
type TokenCache struct {
	mu           sync.Mutex
	conf         *oauth2.Config
	refreshToken string
	httpClient   *http.Client
	token        string
	logger       *slog.Logger
}

// NewTokenCache creates an empty token cache that exchanges the refresh token
// at tokenURL using HTTP Basic client authentication.
func NewTokenCache(creds Credentials, tokenURL string, httpClient *http.Client, logger *slog.Logger) *TokenCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCache{
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: creds.RefreshToken,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// Token returns the cached access token, refreshing it if none is cached.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	return c.refreshLocked(ctx)
}

// Refresh exchanges the refresh token for a new access token. On failure the
// cache is left empty and the error is logged and returned.
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Invalidate drops the cached access token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// refreshLocked performs the exchange. Caller must hold c.mu.
func (c *TokenCache) refreshLocked(ctx context.Context) (string, error) {
	c.token = ""

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken}).Token()
	if err != nil {
		c.logger.Error("could not refresh spotify access token", logging.Err(err))
		return "", fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}

	// The provider may rotate the refresh token
	if tok.RefreshToken != "" && tok.RefreshToken != c.refreshToken {
		c.logger.Info("spotify refresh token rotated")
		c.refreshToken = tok.RefreshToken
	}

	c.token = tok.AccessToken
	c.logger.Debug("spotify access token refreshed")
	return c.token, nil
}
