package ledger

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
)

const appendQuery = `
	INSERT INTO listening_data (timestamp, track_name, artist_name, duration)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(timestamp, track_name, artist_name) DO UPDATE SET
		duration = duration + excluded.duration
`

// Append accumulates seconds of listening for (track, artist), stamped with
// the commit time. Appends that land on the same timestamp and identity are
// summed, never overwritten.
func (r *Repository) Append(ctx context.Context, track, artist string, seconds float64) error {
	if track == "" || artist == "" || seconds <= 0 {
		return fmt.Errorf("%w: %q by %q for %.3fs", ErrInvalidEntry, track, artist, seconds)
	}

	ts := r.now().UTC().Format(TimeLayout)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := r.db.ExecContext(ctx, appendQuery, ts, track, artist, seconds)
		if err != nil && !isBusy(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("failed to append listening time: %w", err)
	}
	return nil
}
