package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1mb-dev/listenlog/internal/logging"
	"github.com/1mb-dev/listenlog/internal/metrics"
	"github.com/1mb-dev/listenlog/internal/spotify"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 5 * time.Second

// Fetcher returns the current playback snapshot, or nil when nothing plays.
type Fetcher interface {
	NowPlaying(ctx context.Context) (*spotify.Snapshot, error)
}

// Ledger accumulates listening seconds per (track, artist).
type Ledger interface {
	Append(ctx context.Context, track, artist string, seconds float64) error
}

// Ticker delivers tick times. It exists so tests can drive the loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Options configure a Loop. Zero values fall back to defaults.
type Options struct {
	Interval  time.Duration
	MaxDelta  time.Duration
	Logger    *slog.Logger
	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
}

// Loop polls playback on a fixed cadence and commits valid deltas.
type Loop struct {
	fetcher   Fetcher
	ledger    Ledger
	interval  time.Duration
	logger    *slog.Logger
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	// mu guards rec so State can be read from other goroutines
	mu  sync.Mutex
	rec *Reconciler
}

// New creates a loop with an empty reconciliation state.
func New(fetcher Fetcher, ledger Ledger, opts Options) *Loop {
	l := &Loop{
		fetcher:   fetcher,
		ledger:    ledger,
		interval:  opts.Interval,
		logger:    opts.Logger,
		newTicker: opts.NewTicker,
		now:       opts.Now,
		rec:       NewReconciler(opts.MaxDelta),
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.newTicker == nil {
		l.newTicker = NewTimeTicker
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// State returns a copy of the reconciliation state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec.State()
}

// Run ticks immediately and then on every interval until ctx is cancelled.
// Failures inside a tick are logged and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.newTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("tracker started", "interval", l.interval)
	for {
		_, _ = l.Tick(ctx)

		select {
		case <-ctx.Done():
			l.logger.Info("tracker stopped")
			return nil
		case <-ticker.C():
		}
	}
}

// Tick performs one poll: fetch, reconcile, and at most one ledger append.
// A fetch error leaves the state untouched.
func (l *Loop) Tick(ctx context.Context) (Result, error) {
	m := metrics.Get()
	m.RecordPoll()

	snap, err := l.fetcher.NowPlaying(ctx)
	if err != nil {
		m.RecordFetchError()
		l.logger.Warn("fetching now playing failed", logging.Err(err))
		return Result{Outcome: OutcomeFetchError}, fmt.Errorf("fetching now playing: %w", err)
	}

	l.mu.Lock()
	res := l.rec.Observe(snap, l.now())
	l.mu.Unlock()

	switch res.Outcome {
	case OutcomeCommitted:
		d := res.Delta
		if err := l.ledger.Append(ctx, d.Track, d.Artist, d.Seconds); err != nil {
			m.RecordCommitError()
			l.logger.Error("recording listening time failed",
				"track", d.Track, "artist", d.Artist, "seconds", d.Seconds, logging.Err(err))
			return res, fmt.Errorf("appending to ledger: %w", err)
		}
		m.RecordCommit(d.Seconds)
		l.logger.Debug("listening time recorded", "track", d.Track, "artist", d.Artist, "seconds", d.Seconds)
	case OutcomeRejected:
		m.RecordDropped()
		l.logger.Debug("delta outside validity window dropped",
			"track", res.Delta.Track, "seconds", res.Delta.Seconds)
	case OutcomeNewSession:
		l.logger.Debug("new play session", "track", snap.TrackName, "artist", snap.ArtistName)
	}

	return res, nil
}
