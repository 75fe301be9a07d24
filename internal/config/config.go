package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned when the poller cannot authenticate.
var ErrMissingCredentials = errors.New("spotify credentials missing")

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Stats    StatsConfig    `yaml:"stats"`
	Discord  DiscordConfig  `yaml:"discord"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SpotifyConfig holds provider credentials and request bounds
type SpotifyConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RefreshToken   string `yaml:"refresh_token"`
	APIBaseURL     string `yaml:"api_base_url"`
	TokenURL       string `yaml:"token_url"`
	RequestTimeout string `yaml:"request_timeout"`
	NowPlayingTTL  string `yaml:"now_playing_ttl"`
	SearchTTL      string `yaml:"search_ttl"`
}

// TrackerConfig holds poller cadence and the delta validity window
type TrackerConfig struct {
	PollInterval string `yaml:"poll_interval"`
	MaxDelta     string `yaml:"max_delta"`
}

// StatsConfig holds aggregation settings
type StatsConfig struct {
	Timezone string `yaml:"timezone"`
}

// DiscordConfig holds bot settings. An empty token disables the bot.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// defaults returns a Config with sensible defaults
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     "15s",
			WriteTimeout:    "15s",
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Path: "data/listening.db",
		},
		Spotify: SpotifyConfig{
			APIBaseURL:     "https://api.spotify.com",
			TokenURL:       spotifyauth.TokenURL,
			RequestTimeout: "10s",
			NowPlayingTTL:  "1s",
			SearchTTL:      "5m",
		},
		Tracker: TrackerConfig{
			PollInterval: "5s",
			MaxDelta:     "15s",
		},
		Stats: StatsConfig{
			Timezone: "Local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order; later files override earlier ones.
// Environment variables override file values.
func Load(paths ...string) (*Config, error) {
	cfg := defaults()

	for _, path := range paths {
		if err := loadFile(cfg, path); err != nil {
			// Skip missing files silently (config.local.yaml may not exist)
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadFile reads a YAML file and merges into cfg
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfig(cfg, &fileCfg)
	return nil
}

// mergeString overwrites dst when src is set
func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeConfig copies non-zero values from src to dst
func mergeConfig(dst, src *Config) {
	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	mergeString(&dst.Server.ReadTimeout, src.Server.ReadTimeout)
	mergeString(&dst.Server.WriteTimeout, src.Server.WriteTimeout)
	mergeString(&dst.Server.ShutdownTimeout, src.Server.ShutdownTimeout)

	// Database
	mergeString(&dst.Database.Path, src.Database.Path)

	// Spotify
	mergeString(&dst.Spotify.ClientID, src.Spotify.ClientID)
	mergeString(&dst.Spotify.ClientSecret, src.Spotify.ClientSecret)
	mergeString(&dst.Spotify.RefreshToken, src.Spotify.RefreshToken)
	mergeString(&dst.Spotify.APIBaseURL, src.Spotify.APIBaseURL)
	mergeString(&dst.Spotify.TokenURL, src.Spotify.TokenURL)
	mergeString(&dst.Spotify.RequestTimeout, src.Spotify.RequestTimeout)
	mergeString(&dst.Spotify.NowPlayingTTL, src.Spotify.NowPlayingTTL)
	mergeString(&dst.Spotify.SearchTTL, src.Spotify.SearchTTL)

	// Tracker
	mergeString(&dst.Tracker.PollInterval, src.Tracker.PollInterval)
	mergeString(&dst.Tracker.MaxDelta, src.Tracker.MaxDelta)

	// Stats
	mergeString(&dst.Stats.Timezone, src.Stats.Timezone)

	// Discord
	mergeString(&dst.Discord.Token, src.Discord.Token)
	mergeString(&dst.Discord.GuildID, src.Discord.GuildID)

	// Log
	mergeString(&dst.Log.Level, src.Log.Level)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	mergeString(&cfg.Database.Path, os.Getenv("DB_PATH"))

	mergeString(&cfg.Spotify.ClientID, os.Getenv("SPOTIFY_CLIENT_ID"))
	mergeString(&cfg.Spotify.ClientSecret, os.Getenv("SPOTIFY_CLIENT_SECRET"))
	mergeString(&cfg.Spotify.RefreshToken, os.Getenv("SPOTIFY_REFRESH_TOKEN"))
	mergeString(&cfg.Spotify.APIBaseURL, os.Getenv("SPOTIFY_API_BASE_URL"))
	mergeString(&cfg.Spotify.TokenURL, os.Getenv("SPOTIFY_TOKEN_URL"))

	mergeString(&cfg.Tracker.PollInterval, os.Getenv("POLL_INTERVAL"))
	mergeString(&cfg.Stats.Timezone, os.Getenv("TZ_NAME"))

	mergeString(&cfg.Discord.Token, os.Getenv("DISCORD_TOKEN"))
	mergeString(&cfg.Discord.GuildID, os.Getenv("DISCORD_GUILD_ID"))

	mergeString(&cfg.Log.Level, os.Getenv("LOG_LEVEL"))
}

// validate checks required fields and value constraints.
// Credentials are not checked here; commands that poll call RequireCredentials.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	durations := []struct {
		name  string
		value string
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"spotify.request_timeout", cfg.Spotify.RequestTimeout},
		{"spotify.now_playing_ttl", cfg.Spotify.NowPlayingTTL},
		{"spotify.search_ttl", cfg.Spotify.SearchTTL},
		{"tracker.poll_interval", cfg.Tracker.PollInterval},
		{"tracker.max_delta", cfg.Tracker.MaxDelta},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s invalid: %w", d.name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	// A window narrower than one poll interval would drop every delta
	poll, _ := cfg.GetPollInterval()
	maxDelta, _ := cfg.GetMaxDelta()
	if maxDelta < poll {
		return fmt.Errorf("tracker.max_delta (%s) must be at least tracker.poll_interval (%s)", maxDelta, poll)
	}

	if _, err := cfg.GetLocation(); err != nil {
		return fmt.Errorf("stats.timezone invalid: %w", err)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", cfg.Log.Level)
	}

	return nil
}

// RequireCredentials reports which Spotify credentials are missing.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Spotify.ClientID == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}
	if c.Spotify.RefreshToken == "" {
		missing = append(missing, "SPOTIFY_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Helper methods to get parsed duration values

func (c *Config) GetReadTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ReadTimeout)
}

func (c *Config) GetWriteTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.WriteTimeout)
}

func (c *Config) GetShutdownTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ShutdownTimeout)
}

func (c *Config) GetRequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Spotify.RequestTimeout)
}

func (c *Config) GetNowPlayingTTL() (time.Duration, error) {
	return time.ParseDuration(c.Spotify.NowPlayingTTL)
}

func (c *Config) GetSearchTTL() (time.Duration, error) {
	return time.ParseDuration(c.Spotify.SearchTTL)
}

func (c *Config) GetPollInterval() (time.Duration, error) {
	return time.ParseDuration(c.Tracker.PollInterval)
}

func (c *Config) GetMaxDelta() (time.Duration, error) {
	return time.ParseDuration(c.Tracker.MaxDelta)
}

// GetLocation resolves stats.timezone; "Local" and "" mean the host zone.
func (c *Config) GetLocation() (*time.Location, error) {
	if c.Stats.Timezone == "" || c.Stats.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Stats.Timezone)
}
