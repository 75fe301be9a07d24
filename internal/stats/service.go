// Package stats aggregates the listening ledger into period summaries.
package stats

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/1mb-dev/listenlog/internal/ledger"
	"github.com/1mb-dev/listenlog/internal/logging"
)

const (
	// DefaultTopN is the length of the top lists in a Summary.
	DefaultTopN = 5
	// genreArtistLimit bounds how many artists are looked up for a genre rollup.
	genreArtistLimit = 50
)

// Store is the read side of the ledger.
type Store interface {
	Total(ctx context.Context, from, to time.Time) (float64, error)
	TopTracks(ctx context.Context, from, to time.Time, limit int) ([]ledger.Ranked, error)
	TopArtists(ctx context.Context, from, to time.Time, limit int) ([]ledger.Ranked, error)
	Breakdown(ctx context.Context, from, to time.Time, bucket ledger.Bucket, loc *time.Location) ([]float64, error)
}

// GenreSource resolves the genres of an artist by name.
type GenreSource interface {
	ArtistGenres(ctx context.Context, artist string) ([]string, error)
}

// Summary is the aggregate view of one period.
type Summary struct {
	Period       string          `json:"period"`
	Label        string          `json:"label"`
	From         *time.Time      `json:"from,omitempty"`
	To           *time.Time      `json:"to,omitempty"`
	TotalSeconds float64         `json:"total_seconds"`
	TopTracks    []ledger.Ranked `json:"top_tracks"`
	TopArtists   []ledger.Ranked `json:"top_artists"`
	Bucket       string          `json:"bucket"`
	Breakdown    []float64       `json:"breakdown_minutes"`
}

// GenreTotal is listening time attributed to one genre.
type GenreTotal struct {
	Genre   string  `json:"genre"`
	Seconds float64 `json:"seconds"`
}

// Service answers period queries against the ledger.
type Service struct {
	store  Store
	genres GenreSource
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a stats service. genres may be nil, in which case
// TopGenres returns no rows.
func NewService(store Store, genres GenreSource, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		genres: genres,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Location returns the time zone periods are resolved in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) resolve(period string) (Range, error) {
	return Resolve(period, s.now(), s.loc)
}

// Summary builds totals, top lists and the breakdown for period.
func (s *Service) Summary(ctx context.Context, period string) (*Summary, error) {
	r, err := s.resolve(period)
	if err != nil {
		return nil, err
	}

	total, err := s.store.Total(ctx, r.From, r.To)
	if err != nil {
		return nil, err
	}
	tracks, err := s.store.TopTracks(ctx, r.From, r.To, DefaultTopN)
	if err != nil {
		return nil, err
	}
	artists, err := s.store.TopArtists(ctx, r.From, r.To, DefaultTopN)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.store.Breakdown(ctx, r.From, r.To, r.Bucket, s.loc)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Period:       r.Period,
		Label:        r.Label(),
		TotalSeconds: total,
		TopTracks:    nonNil(tracks),
		TopArtists:   nonNil(artists),
		Bucket:       bucketName(r.Bucket),
		Breakdown:    breakdown,
	}
	if !r.From.IsZero() {
		from, to := r.From, r.To
		sum.From, sum.To = &from, &to
	}
	return sum, nil
}

// TopTracks returns the top limit tracks for period.
func (s *Service) TopTracks(ctx context.Context, period string, limit int) ([]ledger.Ranked, error) {
	r, err := s.resolve(period)
	if err != nil {
		return nil, err
	}
	tracks, err := s.store.TopTracks(ctx, r.From, r.To, limit)
	return nonNil(tracks), err
}

// TopArtists returns the top limit artists for period.
func (s *Service) TopArtists(ctx context.Context, period string, limit int) ([]ledger.Ranked, error) {
	r, err := s.resolve(period)
	if err != nil {
		return nil, err
	}
	artists, err := s.store.TopArtists(ctx, r.From, r.To, limit)
	return nonNil(artists), err
}

// TopGenres attributes each artist's listening time to every one of its
// genres and returns the top limit genres. Artists whose genres cannot be
// resolved are skipped.
func (s *Service) TopGenres(ctx context.Context, period string, limit int) ([]GenreTotal, error) {
	r, err := s.resolve(period)
	if err != nil {
		return nil, err
	}
	if s.genres == nil {
		return []GenreTotal{}, nil
	}

	artists, err := s.store.TopArtists(ctx, r.From, r.To, genreArtistLimit)
	if err != nil {
		return nil, err
	}

	byGenre := make(map[string]float64)
	for _, a := range artists {
		genres, err := s.genres.ArtistGenres(ctx, a.Artist)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("genre lookup failed", "artist", a.Artist, logging.Err(err))
			continue
		}
		for _, g := range genres {
			byGenre[g] += a.Seconds
		}
	}

	totals := make([]GenreTotal, 0, len(byGenre))
	for g, secs := range byGenre {
		totals = append(totals, GenreTotal{Genre: g, Seconds: secs})
	}
	slices.SortFunc(totals, func(a, b GenreTotal) int {
		if c := cmp.Compare(b.Seconds, a.Seconds); c != 0 {
			return c
		}
		return cmp.Compare(a.Genre, b.Genre)
	})
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

func nonNil(r []ledger.Ranked) []ledger.Ranked {
	if r == nil {
		return []ledger.Ranked{}
	}
	return r
}

func bucketName(b ledger.Bucket) string {
	switch b {
	case ledger.BucketHour:
		return "hour"
	case ledger.BucketWeekday:
		return "weekday"
	case ledger.BucketDay:
		return "day"
	default:
		return "month"
	}
}
