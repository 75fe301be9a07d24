package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/1mb-dev/listenlog/internal/cache"
	"github.com/1mb-dev/listenlog/internal/ledger"
	"github.com/1mb-dev/listenlog/internal/logging"
	"github.com/1mb-dev/listenlog/internal/spotify"
	"github.com/1mb-dev/listenlog/internal/stats"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Player reports what is currently playing
type Player interface {
	NowPlaying(ctx context.Context) (*spotify.Snapshot, error)
}

// Stats provides the aggregate queries the handler serves
type Stats interface {
	Summary(ctx context.Context, period string) (*stats.Summary, error)
	TopTracks(ctx context.Context, period string, limit int) ([]ledger.Ranked, error)
	TopArtists(ctx context.Context, period string, limit int) ([]ledger.Ranked, error)
	TopGenres(ctx context.Context, period string, limit int) ([]stats.GenreTotal, error)
}

// Handler holds dependencies for API handlers
type Handler struct {
	player Player
	stats  Stats
	cache  *cache.Cache
	logger *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(player Player, st Stats, c *cache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		player: player,
		stats:  st,
		cache:  c,
		logger: logger,
	}
}

// RegisterRoutes registers API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/nowplaying", h.nowPlaying)
	mux.HandleFunc("/api/stats/", h.handleStats)
	mux.HandleFunc("/api/top/", h.handleTop)
	mux.HandleFunc("/api/genres", h.topGenres)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response failed", logging.Err(err))
	}
}

// writeError maps service errors onto status codes
func (h *Handler) writeError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, stats.ErrUnknownPeriod) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error(what+" failed", logging.Err(err))
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Handler) nowPlaying(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	snap, err := h.player.NowPlaying(r.Context())
	if err != nil {
		h.logger.Warn("now playing lookup failed", logging.Err(err))
		http.Error(w, "Playback state unavailable", http.StatusBadGateway)
		return
	}
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, snap)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	// Parse path: /api/stats/{period}
	period := strings.ToLower(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/stats/"), "/"))
	if period == "" || strings.Contains(period, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	key := "stats:" + period
	if cached, found := h.cache.Get(key); found {
		w.Header().Set("Cache-Control", "public, max-age=30")
		w.Header().Set("X-Cache", "HIT")
		h.writeJSON(w, cached)
		return
	}

	summary, err := h.stats.Summary(r.Context(), period)
	if err != nil {
		h.writeError(w, "stats summary", err)
		return
	}

	h.cache.Set(key, summary, cache.StatsTTL)

	w.Header().Set("Cache-Control", "public, max-age=30")
	w.Header().Set("X-Cache", "MISS")
	h.writeJSON(w, summary)
}

func (h *Handler) handleTop(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	// Parse path: /api/top/{tracks|artists}
	kind := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/top/"), "/")
	period, limit, ok := periodAndLimit(w, r)
	if !ok {
		return
	}

	var (
		ranked []ledger.Ranked
		err    error
	)
	switch kind {
	case "tracks":
		ranked, err = h.stats.TopTracks(r.Context(), period, limit)
	case "artists":
		ranked, err = h.stats.TopArtists(r.Context(), period, limit)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "top "+kind, err)
		return
	}

	h.writeJSON(w, ranked)
}

func (h *Handler) topGenres(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/genres" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if !allowGet(w, r) {
		return
	}

	period, limit, ok := periodAndLimit(w, r)
	if !ok {
		return
	}

	genres, err := h.stats.TopGenres(r.Context(), period, limit)
	if err != nil {
		h.writeError(w, "top genres", err)
		return
	}

	h.writeJSON(w, genres)
}

// periodAndLimit reads ?period= (default all) and ?limit= (default 10, max 50).
func periodAndLimit(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query()

	period := q.Get("period")
	if period == "" {
		period = stats.All
	}

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return "", 0, false
		}
		limit = min(n, maxLimit)
	}
	return period, limit, true
}
