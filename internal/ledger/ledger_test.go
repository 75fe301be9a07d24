package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1mb-dev/listenlog/internal/testutil"
)

var t0 = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) // a Monday

func openTestRepo(t *testing.T, rows ...testutil.Row) *Repository {
	t.Helper()

	repo, err := Open(testutil.SeedDB(t, rows...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func countRows(t *testing.T, repo *Repository) int {
	t.Helper()
	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM listening_data`).Scan(&n))
	return n
}

func TestOpen_CreatesSchema(t *testing.T) {
	repo, err := Open(t.TempDir() + "/fresh.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Ping(context.Background()))
	assert.Equal(t, 0, countRows(t, repo))
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := t.TempDir() + "/ledger.db"

	repo, err := Open(path)
	require.NoError(t, err)
	repo.now = fixedClock(t0)
	require.NoError(t, repo.Append(context.Background(), "Song", "Band", 4))
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	total, err := repo.Total(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, total, 1e-9)
}

func TestAppend_DistinctTicksAreDistinctRows(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	now := t0
	repo.now = func() time.Time {
		now = now.Add(5 * time.Second)
		return now
	}

	require.NoError(t, repo.Append(ctx, "Song", "Band", 5))
	require.NoError(t, repo.Append(ctx, "Song", "Band", 4.5))

	assert.Equal(t, 2, countRows(t, repo))
}

func TestAppend_SameTimestampSums(t *testing.T) {
	repo := openTestRepo(t)
	repo.now = fixedClock(t0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Append(ctx, "Song", "Band", 1.5))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countRows(t, repo))

	var duration float64
	require.NoError(t, repo.db.QueryRow(`SELECT duration FROM listening_data`).Scan(&duration))
	assert.InDelta(t, 15.0, duration, 1e-9)
}

func TestAppend_MicrosecondPrecision(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	repo.now = fixedClock(t0.Add(time.Microsecond))
	require.NoError(t, repo.Append(ctx, "Song", "Band", 1))
	repo.now = fixedClock(t0.Add(2 * time.Microsecond))
	require.NoError(t, repo.Append(ctx, "Song", "Band", 1))

	assert.Equal(t, 2, countRows(t, repo))
}

func TestAppend_StoresCommitTimeInUTC(t *testing.T) {
	repo := openTestRepo(t)
	loc := time.FixedZone("UTC+5", 5*3600)
	repo.now = fixedClock(time.Date(2026, 3, 2, 14, 30, 0, 0, loc))

	require.NoError(t, repo.Append(context.Background(), "Song", "Band", 2))

	var ts string
	require.NoError(t, repo.db.QueryRow(`SELECT timestamp FROM listening_data`).Scan(&ts))
	assert.Equal(t, "2026-03-02 09:30:00.000000", ts)
}

func TestAppend_RejectsInvalid(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		track, artist string
		seconds       float64
	}{
		{"empty track", "", "Band", 1},
		{"empty artist", "Song", "", 1},
		{"zero seconds", "Song", "Band", 0},
		{"negative seconds", "Song", "Band", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Append(ctx, tt.track, tt.artist, tt.seconds)
			require.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
	assert.Equal(t, 0, countRows(t, repo))
}

func TestAppend_ClosedDatabaseFailsFast(t *testing.T) {
	repo, err := Open(t.TempDir() + "/closed.db")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	start := time.Now()
	err = repo.Append(context.Background(), "Song", "Band", 1)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "non-busy errors are not retried")
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(errors.New("database is locked")), "only driver errors are classified")
	assert.False(t, isBusy(sql.ErrConnDone))
}

func seedWeek() []testutil.Row {
	return []testutil.Row{
		{At: t0, Track: "Alpha", Artist: "Band", Seconds: 300},
		{At: t0.Add(time.Hour), Track: "Alpha", Artist: "Band", Seconds: 120},
		{At: t0.Add(2 * time.Hour), Track: "Beta", Artist: "Band", Seconds: 60},
		{At: t0.Add(24 * time.Hour), Track: "Gamma", Artist: "Other", Seconds: 600},
		{At: t0.AddDate(0, 0, -7), Track: "Old", Artist: "Past", Seconds: 900},
	}
}

func TestTotal(t *testing.T) {
	repo := openTestRepo(t, seedWeek()...)
	ctx := context.Background()

	tests := []struct {
		name     string
		from, to time.Time
		want     float64
	}{
		{"unbounded", time.Time{}, time.Time{}, 1980},
		{"from only", t0, time.Time{}, 1080},
		{"to only", time.Time{}, t0, 900},
		{"single day", t0.Truncate(24 * time.Hour), t0.Truncate(24 * time.Hour).Add(24 * time.Hour), 480},
		{"empty range", t0.Add(-time.Hour), t0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Total(ctx, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTopTracks(t *testing.T) {
	repo := openTestRepo(t, seedWeek()...)

	got, err := repo.TopTracks(context.Background(), t0, time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Ranked{
		{Track: "Gamma", Artist: "Other", Seconds: 600},
		{Track: "Alpha", Artist: "Band", Seconds: 420},
	}, got)
}

func TestTopArtists(t *testing.T) {
	repo := openTestRepo(t, seedWeek()...)

	got, err := repo.TopArtists(context.Background(), time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []Ranked{
		{Artist: "Past", Seconds: 900},
		{Artist: "Other", Seconds: 600},
		{Artist: "Band", Seconds: 480},
	}, got)
}

func TestTopTracks_Empty(t *testing.T) {
	repo := openTestRepo(t)

	got, err := repo.TopTracks(context.Background(), time.Time{}, time.Time{}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBreakdown(t *testing.T) {
	repo := openTestRepo(t, seedWeek()...)
	ctx := context.Background()

	hours, err := repo.Breakdown(ctx, t0, t0.Add(24*time.Hour), BucketHour, time.UTC)
	require.NoError(t, err)
	require.Len(t, hours, 24)
	assert.InDelta(t, 5.0, hours[9], 1e-9)
	assert.InDelta(t, 2.0, hours[10], 1e-9)
	assert.InDelta(t, 1.0, hours[11], 1e-9)

	days, err := repo.Breakdown(ctx, t0, time.Time{}, BucketWeekday, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.InDelta(t, 8.0, days[0], 1e-9, "monday")
	assert.InDelta(t, 10.0, days[1], 1e-9, "tuesday")
}

func TestBreakdown_UsesLocation(t *testing.T) {
	repo := openTestRepo(t, seedWeek()...)
	loc := time.FixedZone("UTC-10", -10*3600)

	hours, err := repo.Breakdown(context.Background(), t0, t0.Add(time.Minute), BucketHour, loc)
	require.NoError(t, err)
	// 09:30 UTC is 23:30 the previous day
	assert.InDelta(t, 5.0, hours[23], 1e-9)
}

func TestBreakdown_Buckets(t *testing.T) {
	repo := openTestRepo(t, seedWeek()...)
	ctx := context.Background()

	months, err := repo.Breakdown(ctx, time.Time{}, time.Time{}, BucketMonth, time.UTC)
	require.NoError(t, err)
	require.Len(t, months, 12)
	assert.InDelta(t, 18.0, months[2], 1e-9, "march")
	assert.InDelta(t, 15.0, months[1], 1e-9, "february")

	dom, err := repo.Breakdown(ctx, time.Time{}, time.Time{}, BucketDay, time.UTC)
	require.NoError(t, err)
	require.Len(t, dom, 31)
	assert.InDelta(t, 8.0, dom[1], 1e-9)

	_, err = repo.Breakdown(ctx, time.Time{}, time.Time{}, Bucket(42), time.UTC)
	require.Error(t, err)
}

func TestLatest(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	got, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	repo.now = fixedClock(t0)
	require.NoError(t, repo.Append(ctx, "Song", "Band", 3))
	repo.now = fixedClock(t0.Add(time.Second))
	require.NoError(t, repo.Append(ctx, "Next", "Band", 2))

	got, err = repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Next", got.Track)
	assert.True(t, got.At.Equal(t0.Add(time.Second)))
}
