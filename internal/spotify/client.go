package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/1mb-dev/listenlog/internal/cache"
)

// Web API endpoints (paths are also the response cache keys)
const (
	EndpointNowPlaying = "/v1/me/player/currently-playing"
	endpointSearch     = "/v1/search"
)

// Tokens supplies bearer tokens to the client.
type Tokens interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Options tune a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	NowPlayingTTL time.Duration
	SearchTTL     time.Duration
	Logger        *slog.Logger
}

// Client issues authenticated Web API requests through the response cache.
type Client struct {
	baseURL       string
	http          *http.Client
	tokens        Tokens
	cache         *cache.Cache
	nowPlayingTTL time.Duration
	searchTTL     time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewClient creates a Web API client.
func NewClient(tokens Tokens, c *cache.Cache, opts Options) *Client {
	cl := &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		http:          opts.HTTPClient,
		tokens:        tokens,
		cache:         c,
		nowPlayingTTL: opts.NowPlayingTTL,
		searchTTL:     opts.SearchTTL,
		logger:        opts.Logger,
		now:           time.Now,
	}
	if cl.baseURL == "" {
		cl.baseURL = "https://api.spotify.com"
	}
	if cl.http == nil {
		cl.http = &http.Client{Timeout: 10 * time.Second}
	}
	if cl.nowPlayingTTL <= 0 {
		cl.nowPlayingTTL = cache.NowPlayingTTL
	}
	if cl.searchTTL <= 0 {
		cl.searchTTL = cache.SearchTTL
	}
	if cl.logger == nil {
		cl.logger = slog.Default()
	}
	return cl
}

// NowPlaying returns the current playback snapshot, or nil when nothing is
// playing. Responses are cached for the now-playing TTL so concurrent callers
// share one request; "no content" is never cached.
func (c *Client) NowPlaying(ctx context.Context) (*Snapshot, error) {
	cp, err := getJSON[spotifyapi.CurrentlyPlaying](ctx, c, EndpointNowPlaying, c.nowPlayingTTL)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(cp, c.now())
}

// ArtistGenres returns the genres Spotify lists for the best match of name.
func (c *Client) ArtistGenres(ctx context.Context, name string) ([]string, error) {
	artist, err := c.searchArtist(ctx, name)
	if err != nil || artist == nil {
		return nil, err
	}
	return artist.Genres, nil
}

// ArtistImage returns the highest-resolution image URL for the best match of
// name, or "" when none is available.
func (c *Client) ArtistImage(ctx context.Context, name string) (string, error) {
	artist, err := c.searchArtist(ctx, name)
	if err != nil || artist == nil || len(artist.Images) == 0 {
		return "", err
	}
	return artist.Images[0].URL, nil
}

func (c *Client) searchArtist(ctx context.Context, name string) (*spotifyapi.FullArtist, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("type", "artist")
	q.Set("limit", "1")

	res, err := getJSON[spotifyapi.SearchResult](ctx, c, endpointSearch+"?"+q.Encode(), c.searchTTL)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Artists == nil || len(res.Artists.Artists) == 0 {
		return nil, nil
	}
	return &res.Artists.Artists[0], nil
}

// getJSON fetches endpoint and decodes it into T, consulting the response
// cache first. A nil result with nil error means the API answered 204.
func getJSON[T any](ctx context.Context, c *Client, endpoint string, ttl time.Duration) (*T, error) {
	if cached, ok := c.cache.Get(endpoint); ok {
		if v, ok := cached.(*T); ok {
			return v, nil
		}
	}

	resp, err := c.do(ctx, endpoint)
	if err != nil || resp == nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrMalformedPayload, endpoint, err)
	}

	c.cache.Set(endpoint, &v, ttl)
	return &v, nil
}

// do sends an authenticated GET. A 401 forces one token refresh and exactly
// one retry. Returns (nil, nil) for 204 No Content.
func (c *Client) do(ctx context.Context, endpoint string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	resp, err := c.send(ctx, endpoint, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		c.logger.Debug("spotify token rejected, refreshing", "endpoint", endpoint)

		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		resp, err = c.send(ctx, endpoint, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			return nil, ErrUnauthorized
		}
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		discard(resp)
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		discard(resp)
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, endpoint, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	return resp, nil
}

// discard drains and closes a body so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
