package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ranked is one row of a top-N listing. Track is empty for artist rankings.
type Ranked struct {
	Track   string  `json:"track,omitempty"`
	Artist  string  `json:"artist"`
	Seconds float64 `json:"seconds"`
}

// Listen is a single stored ledger row.
type Listen struct {
	At      time.Time `json:"at"`
	Track   string    `json:"track"`
	Artist  string    `json:"artist"`
	Seconds float64   `json:"seconds"`
}

// Bucket selects the granularity of a Breakdown.
type Bucket int

const (
	BucketHour    Bucket = iota // 24 slots, hour of day
	BucketWeekday               // 7 slots, Monday first
	BucketDay                   // 31 slots, day of month
	BucketMonth                 // 12 slots, January first
)

// Size is the number of slots in the bucket.
func (b Bucket) Size() int {
	switch b {
	case BucketHour:
		return 24
	case BucketWeekday:
		return 7
	case BucketDay:
		return 31
	case BucketMonth:
		return 12
	}
	return 0
}

// slot maps a local time to its bucket index.
func (b Bucket) slot(t time.Time) int {
	switch b {
	case BucketHour:
		return t.Hour()
	case BucketWeekday:
		return (int(t.Weekday()) + 6) % 7
	case BucketDay:
		return t.Day() - 1
	case BucketMonth:
		return int(t.Month()) - 1
	}
	return -1
}

// rangeWhere builds the WHERE clause for [from, to). Zero bounds are open.
func rangeWhere(from, to time.Time) (string, []any) {
	var conds []string
	var args []any
	if !from.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, from.UTC().Format(TimeLayout))
	}
	if !to.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, to.UTC().Format(TimeLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Total returns the seconds listened in [from, to).
func (r *Repository) Total(ctx context.Context, from, to time.Time) (float64, error) {
	where, args := rangeWhere(from, to)
	query := fmt.Sprintf(`SELECT COALESCE(SUM(duration), 0) FROM listening_data %s`, where)

	var total float64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum listening time: %w", err)
	}
	return total, nil
}

// TopTracks returns the most listened tracks in [from, to).
func (r *Repository) TopTracks(ctx context.Context, from, to time.Time, limit int) ([]Ranked, error) {
	where, args := rangeWhere(from, to)
	query := fmt.Sprintf(`
		SELECT track_name, artist_name, SUM(duration) AS total
		FROM listening_data
		%s
		GROUP BY track_name, artist_name
		ORDER BY total DESC, track_name ASC
		LIMIT ?
	`, where)

	rows, err := r.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ranked []Ranked
	for rows.Next() {
		var rk Ranked
		if err := rows.Scan(&rk.Track, &rk.Artist, &rk.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan top track: %w", err)
		}
		ranked = append(ranked, rk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating top tracks: %w", err)
	}
	return ranked, nil
}

// TopArtists returns the most listened artists in [from, to).
func (r *Repository) TopArtists(ctx context.Context, from, to time.Time, limit int) ([]Ranked, error) {
	where, args := rangeWhere(from, to)
	query := fmt.Sprintf(`
		SELECT artist_name, SUM(duration) AS total
		FROM listening_data
		%s
		GROUP BY artist_name
		ORDER BY total DESC, artist_name ASC
		LIMIT ?
	`, where)

	rows, err := r.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top artists: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ranked []Ranked
	for rows.Next() {
		var rk Ranked
		if err := rows.Scan(&rk.Artist, &rk.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan top artist: %w", err)
		}
		ranked = append(ranked, rk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating top artists: %w", err)
	}
	return ranked, nil
}

// Breakdown returns minutes listened per bucket slot in [from, to), with
// slots computed in loc.
func (r *Repository) Breakdown(ctx context.Context, from, to time.Time, bucket Bucket, loc *time.Location) ([]float64, error) {
	if bucket.Size() == 0 {
		return nil, fmt.Errorf("unknown bucket %d", bucket)
	}
	if loc == nil {
		loc = time.UTC
	}

	where, args := rangeWhere(from, to)
	query := fmt.Sprintf(`SELECT timestamp, duration FROM listening_data %s`, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	minutes := make([]float64, bucket.Size())
	for rows.Next() {
		var ts string
		var secs float64
		if err := rows.Scan(&ts, &secs); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		at, err := time.ParseInLocation(TimeLayout, ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
		}
		minutes[bucket.slot(at.In(loc))] += secs / 60
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating breakdown: %w", err)
	}
	return minutes, nil
}

// Latest returns the most recently committed row, or nil on an empty ledger.
func (r *Repository) Latest(ctx context.Context) (*Listen, error) {
	query := `
		SELECT timestamp, track_name, artist_name, duration
		FROM listening_data
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	var l Listen
	var ts string
	err := r.db.QueryRowContext(ctx, query).Scan(&ts, &l.Track, &l.Artist, &l.Seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest listen: %w", err)
	}

	l.At, err = time.ParseInLocation(TimeLayout, ts, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
	}
	return &l, nil
}
