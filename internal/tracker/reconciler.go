package tracker

import (
	"time"

	"github.com/1mb-dev/listenlog/internal/spotify"
)

// DefaultMaxDelta is the upper bound of the validity window. It is three
// default poll intervals; a wider gap means a missed poll, a seek forward or
// a loop of the track, none of which can be credited reliably.
const DefaultMaxDelta = 15 * time.Second

// Outcome classifies what a single observation did to the state.
type Outcome int

const (
	// OutcomeIdle: nothing playing, state reset.
	OutcomeIdle Outcome = iota
	// OutcomePaused: progress recorded, nothing committed.
	OutcomePaused
	// OutcomeNewSession: identity changed or no baseline, nothing committed.
	OutcomeNewSession
	// OutcomeCommitted: a delta inside the validity window was produced.
	OutcomeCommitted
	// OutcomeRejected: a delta outside the validity window was dropped.
	OutcomeRejected
	// OutcomeFetchError: the snapshot could not be fetched; state untouched.
	OutcomeFetchError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomePaused:
		return "paused"
	case OutcomeNewSession:
		return "new_session"
	case OutcomeCommitted:
		return "committed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFetchError:
		return "fetch_error"
	default:
		return "unknown"
	}
}

// Delta is elapsed listening time inferred between two consecutive
// snapshots of the same track.
type Delta struct {
	Track   string
	Artist  string
	Seconds float64
}

// Result is the outcome of one observation. Delta is set only for
// OutcomeCommitted and OutcomeRejected.
type Result struct {
	Outcome Outcome
	Delta   Delta
}

// State is the last known playback observation.
//
// HasProgress is false whenever the previous poll found nothing playing.
type State struct {
	LastTrack      string
	LastArtist     string
	LastProgressMs int64
	HasProgress    bool
	LastPoll       time.Time
}

// Reconciler turns successive snapshots into listening deltas.
// It is not safe for concurrent use; exactly one goroutine may call Observe.
type Reconciler struct {
	state    State
	maxDelta float64
}

// NewReconciler creates a reconciler with an empty state. A non-positive
// maxDelta selects DefaultMaxDelta.
func NewReconciler(maxDelta time.Duration) *Reconciler {
	if maxDelta <= 0 {
		maxDelta = DefaultMaxDelta
	}
	return &Reconciler{maxDelta: maxDelta.Seconds()}
}

// State returns a copy of the current state.
func (r *Reconciler) State() State {
	return r.state
}

// Observe folds one snapshot (nil when nothing is playing) into the state.
func (r *Reconciler) Observe(snap *spotify.Snapshot, now time.Time) Result {
	st := &r.state
	st.LastPoll = now

	if snap == nil {
		st.LastTrack = ""
		st.LastArtist = ""
		st.LastProgressMs = 0
		st.HasProgress = false
		return Result{Outcome: OutcomeIdle}
	}

	// Keep the position so an unpause on the same track resumes from it.
	// Identity is deliberately left alone.
	if !snap.IsPlaying {
		st.LastProgressMs = snap.ProgressMs
		st.HasProgress = true
		return Result{Outcome: OutcomePaused}
	}

	sameSession := st.HasProgress && snap.SameTrack(st.LastTrack, st.LastArtist)
	last := st.LastProgressMs

	st.LastTrack = snap.TrackName
	st.LastArtist = snap.ArtistName
	st.LastProgressMs = snap.ProgressMs
	st.HasProgress = true

	if !sameSession {
		return Result{Outcome: OutcomeNewSession}
	}

	d := Delta{
		Track:   snap.TrackName,
		Artist:  snap.ArtistName,
		Seconds: float64(snap.ProgressMs-last) / 1000,
	}
	if d.Seconds <= 0 || d.Seconds > r.maxDelta {
		return Result{Outcome: OutcomeRejected, Delta: d}
	}
	return Result{Outcome: OutcomeCommitted, Delta: d}
}
