package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1mb-dev/listenlog/internal/ledger"
	"github.com/1mb-dev/listenlog/internal/logging"
	"github.com/1mb-dev/listenlog/internal/spotify"
	"github.com/1mb-dev/listenlog/internal/stats"
)

type fakeStats struct {
	periods []string
	err     error
}

func (f *fakeStats) Summary(_ context.Context, period string) (*stats.Summary, error) {
	f.periods = append(f.periods, period)
	if f.err != nil {
		return nil, f.err
	}
	breakdown := make([]float64, 24)
	breakdown[20] = 30
	return &stats.Summary{
		Period:       period,
		Label:        "today",
		TotalSeconds: 125 * 60,
		TopTracks:    []ledger.Ranked{{Track: "Alpha", Artist: "Band", Seconds: 1800}},
		TopArtists:   []ledger.Ranked{{Artist: "Band", Seconds: 3600}},
		Bucket:       "hour",
		Breakdown:    breakdown,
	}, nil
}

func (f *fakeStats) TopTracks(context.Context, string, int) ([]ledger.Ranked, error) {
	return []ledger.Ranked{{Track: "Alpha", Artist: "Band", Seconds: 120}, {Track: "Beta", Artist: "Solo", Seconds: 60}}, f.err
}

func (f *fakeStats) TopArtists(context.Context, string, int) ([]ledger.Ranked, error) {
	return nil, f.err
}

func (f *fakeStats) TopGenres(context.Context, string, int) ([]stats.GenreTotal, error) {
	return []stats.GenreTotal{{Genre: "shoegaze", Seconds: 90 * 60}}, f.err
}

type fakePlayer struct {
	snap *spotify.Snapshot
	err  error
}

func (f *fakePlayer) NowPlaying(context.Context) (*spotify.Snapshot, error) {
	return f.snap, f.err
}

type fakeImages struct{}

func (fakeImages) ArtistImage(_ context.Context, artist string) (string, error) {
	if artist == "Band" {
		return "https://img.example/band.jpg", nil
	}
	return "", errors.New("not found")
}

func TestCommandsHaveReplies(t *testing.T) {
	r := NewReplies(&fakeStats{}, &fakePlayer{}, nil, logging.Discard())

	seen := map[string]bool{}
	for _, cmd := range Commands {
		require.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
		assert.NotEmpty(t, cmd.Description)

		embed, err := r.Build(context.Background(), cmd.Name)
		require.NoError(t, err, cmd.Name)
		assert.NotEmpty(t, embed.Title, cmd.Name)
	}
	assert.Len(t, seen, 8)
}

func TestBuild_UnknownCommand(t *testing.T) {
	r := NewReplies(&fakeStats{}, &fakePlayer{}, nil, logging.Discard())

	_, err := r.Build(context.Background(), "yearly")
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestBuild_SummaryPeriods(t *testing.T) {
	st := &fakeStats{}
	r := NewReplies(st, &fakePlayer{}, nil, logging.Discard())

	for _, cmd := range []string{"daily", "weekly", "monthly", "overview"} {
		_, err := r.Build(context.Background(), cmd)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{stats.Today, stats.Week, stats.Month, stats.Year}, st.periods)
}

func TestBuild_Daily(t *testing.T) {
	r := NewReplies(&fakeStats{}, &fakePlayer{}, fakeImages{}, logging.Discard())

	embed, err := r.Build(context.Background(), "daily")
	require.NoError(t, err)

	assert.Equal(t, "Daily Listening Stats", embed.Title)
	assert.Equal(t, "You have listened for **125 minutes** today.", embed.Description)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Top Artists", embed.Fields[0].Name)
	assert.Equal(t, "`1.` Band - `60 min`", embed.Fields[0].Value)
	assert.Equal(t, "`1.` Alpha - `30 min`", embed.Fields[1].Value)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Peak hour: 20:00 (30 min)", embed.Footer.Text)
	require.NotNil(t, embed.Thumbnail)
	assert.Equal(t, "https://img.example/band.jpg", embed.Thumbnail.URL)
}

func TestBuild_OverviewIncludesNowPlaying(t *testing.T) {
	player := &fakePlayer{snap: &spotify.Snapshot{
		TrackName: "Alpha", ArtistName: "Band", URL: "https://open.example/alpha",
		ThumbnailURL: "https://img.example/alpha.jpg", IsPlaying: true,
	}}
	r := NewReplies(&fakeStats{}, player, fakeImages{}, logging.Discard())

	embed, err := r.Build(context.Background(), "overview")
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Now Playing: [Alpha - Band](https://open.example/alpha)")
	assert.Equal(t, "https://img.example/alpha.jpg", embed.Thumbnail.URL)
}

func TestBuild_OverviewSurvivesPlayerFailure(t *testing.T) {
	r := NewReplies(&fakeStats{}, &fakePlayer{err: spotify.ErrUnauthorized}, nil, logging.Discard())

	embed, err := r.Build(context.Background(), "overview")
	require.NoError(t, err)
	assert.NotContains(t, embed.Description, "Now Playing")
}

func TestBuild_NowPlaying(t *testing.T) {
	tests := []struct {
		name    string
		player  *fakePlayer
		want    string
		wantErr bool
	}{
		{"idle", &fakePlayer{}, "Nothing is playing right now.", false},
		{"paused", &fakePlayer{snap: &spotify.Snapshot{TrackName: "Alpha", ArtistName: "Band", URL: "u", ProgressMs: 83000}},
			"[Alpha](u)\nby Band\nPaused at 1m", false},
		{"failure", &fakePlayer{err: errors.New("timeout")}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReplies(&fakeStats{}, tt.player, nil, logging.Discard())

			embed, err := r.Build(context.Background(), "nowplaying")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, embed.Description)
		})
	}
}

func TestBuild_Rankings(t *testing.T) {
	r := NewReplies(&fakeStats{}, &fakePlayer{}, fakeImages{}, logging.Discard())
	ctx := context.Background()

	songs, err := r.Build(ctx, "topsongs")
	require.NoError(t, err)
	require.Len(t, songs.Fields, 1)
	assert.Equal(t, "`1.` Alpha - `2 min`\n`2.` Beta - `1 min`", songs.Fields[0].Value)

	artists, err := r.Build(ctx, "topartists")
	require.NoError(t, err)
	assert.Equal(t, "No listening data available.", artists.Description)
	assert.Empty(t, artists.Fields)

	genres, err := r.Build(ctx, "topgenres")
	require.NoError(t, err)
	assert.Equal(t, "`1.` shoegaze - `90 min`", genres.Fields[0].Value)
}

func TestBuild_StatsFailure(t *testing.T) {
	r := NewReplies(&fakeStats{err: errors.New("db gone")}, &fakePlayer{}, nil, logging.Discard())

	for _, cmd := range []string{"daily", "topsongs", "topartists", "topgenres"} {
		_, err := r.Build(context.Background(), cmd)
		assert.Error(t, err, cmd)
	}
}
