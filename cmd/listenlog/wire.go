package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/1mb-dev/listenlog/internal/cache"
	"github.com/1mb-dev/listenlog/internal/config"
	"github.com/1mb-dev/listenlog/internal/ledger"
	"github.com/1mb-dev/listenlog/internal/logging"
	"github.com/1mb-dev/listenlog/internal/spotify"
	"github.com/1mb-dev/listenlog/internal/stats"
)

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	repo   *ledger.Repository
	cache  *cache.Cache
	tokens *spotify.TokenCache
	client *spotify.Client
	stats  *stats.Service
}

// newTokenCache builds the token cache with the configured request bound.
func newTokenCache(cfg *config.Config, logger *slog.Logger) (*spotify.TokenCache, *http.Client, error) {
	timeout, err := cfg.GetRequestTimeout()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid request timeout: %w", err)
	}
	httpClient := &http.Client{Timeout: timeout}

	tokens := spotify.NewTokenCache(spotify.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	}, cfg.Spotify.TokenURL, httpClient, logger)
	return tokens, httpClient, nil
}

// wireApp opens the ledger and builds the Spotify client and stats service.
// withSpotify is false for commands that only read the ledger.
func wireApp(cfg *config.Config, logger *slog.Logger, withSpotify bool) (*app, error) {
	loc, err := cfg.GetLocation()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	repo, err := ledger.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		cache:  cache.New(),
	}

	var genres stats.GenreSource
	if withSpotify {
		if err := a.wireSpotify(); err != nil {
			_ = repo.Close()
			return nil, err
		}
		genres = a.client
	}

	a.stats = stats.NewService(repo, genres, loc, logger)
	return a, nil
}

func (a *app) wireSpotify() error {
	tokens, httpClient, err := newTokenCache(a.cfg, a.logger)
	if err != nil {
		return err
	}

	nowPlayingTTL, err := a.cfg.GetNowPlayingTTL()
	if err != nil {
		return fmt.Errorf("invalid now_playing_ttl: %w", err)
	}
	searchTTL, err := a.cfg.GetSearchTTL()
	if err != nil {
		return fmt.Errorf("invalid search_ttl: %w", err)
	}

	a.tokens = tokens
	a.client = spotify.NewClient(tokens, a.cache, spotify.Options{
		BaseURL:       a.cfg.Spotify.APIBaseURL,
		HTTPClient:    httpClient,
		NowPlayingTTL: nowPlayingTTL,
		SearchTTL:     searchTTL,
		Logger:        a.logger,
	})
	return nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Error("closing ledger failed", logging.Err(err))
	}
}
