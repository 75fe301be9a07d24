// Package discord serves listening stats as Discord slash commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/1mb-dev/listenlog/internal/ledger"
	"github.com/1mb-dev/listenlog/internal/logging"
	"github.com/1mb-dev/listenlog/internal/spotify"
	"github.com/1mb-dev/listenlog/internal/stats"
)

const (
	embedColor = 0x393a41
	rankLimit  = 10
)

// ErrUnknownCommand is returned for a command name the bot does not serve.
var ErrUnknownCommand = errors.New("unknown command")

// Stats provides the aggregate queries behind the commands.
type Stats interface {
	Summary(ctx context.Context, period string) (*stats.Summary, error)
	TopTracks(ctx context.Context, period string, limit int) ([]ledger.Ranked, error)
	TopArtists(ctx context.Context, period string, limit int) ([]ledger.Ranked, error)
	TopGenres(ctx context.Context, period string, limit int) ([]stats.GenreTotal, error)
}

// Player reports what is currently playing.
type Player interface {
	NowPlaying(ctx context.Context) (*spotify.Snapshot, error)
}

// Images resolves artist thumbnails. Optional.
type Images interface {
	ArtistImage(ctx context.Context, artist string) (string, error)
}

// Commands are registered on startup.
var Commands = []*discordgo.ApplicationCommand{
	{Name: "daily", Description: "Show your listening stats for today."},
	{Name: "weekly", Description: "Show your listening stats for the current week."},
	{Name: "monthly", Description: "Show your listening stats for the current month."},
	{Name: "overview", Description: "Show your full listening overview for this year."},
	{Name: "topsongs", Description: "Show your top 10 most listened-to songs."},
	{Name: "topartists", Description: "Show your top 10 most listened-to artists."},
	{Name: "topgenres", Description: "Show your most listened-to music genres."},
	{Name: "nowplaying", Description: "Show what is playing on Spotify right now."},
}

// Replies builds the embed for each command.
type Replies struct {
	stats  Stats
	player Player
	images Images
	logger *slog.Logger
}

// NewReplies creates a reply builder. images may be nil.
func NewReplies(st Stats, player Player, images Images, logger *slog.Logger) *Replies {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replies{stats: st, player: player, images: images, logger: logger}
}

// Build answers the named command.
func (r *Replies) Build(ctx context.Context, command string) (*discordgo.MessageEmbed, error) {
	switch command {
	case "daily":
		return r.summary(ctx, stats.Today, "Daily Listening Stats", false)
	case "weekly":
		return r.summary(ctx, stats.Week, "Weekly Listening Stats", false)
	case "monthly":
		return r.summary(ctx, stats.Month, "Monthly Listening Stats", false)
	case "overview":
		return r.summary(ctx, stats.Year, "Spotify Overview", true)
	case "topsongs":
		tracks, err := r.stats.TopTracks(ctx, stats.All, rankLimit)
		if err != nil {
			return nil, err
		}
		return r.ranking(ctx, "Top Songs", "Most listened-to songs of all time", tracks), nil
	case "topartists":
		artists, err := r.stats.TopArtists(ctx, stats.All, rankLimit)
		if err != nil {
			return nil, err
		}
		return r.ranking(ctx, "Top Artists", "Most listened-to artists of all time", artists), nil
	case "topgenres":
		return r.genres(ctx)
	case "nowplaying":
		return r.nowPlaying(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

func (r *Replies) summary(ctx context.Context, period, title string, withNowPlaying bool) (*discordgo.MessageEmbed, error) {
	sum, err := r.stats.Summary(ctx, period)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("You have listened for **%s minutes** %s.", humanize.Comma(stats.Minutes(sum.TotalSeconds)), sum.Label)
	embed := &discordgo.MessageEmbed{Title: title, Color: embedColor}

	var thumb string
	if withNowPlaying {
		if snap := r.currentlyPlaying(ctx); snap != nil {
			desc += fmt.Sprintf("\nNow Playing: [%s - %s](%s)", snap.TrackName, snap.ArtistName, snap.URL)
			thumb = snap.ThumbnailURL
		}
	}
	embed.Description = desc

	if len(sum.TopArtists) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Top Artists", Value: rankLines(sum.TopArtists)})
	}
	if len(sum.TopTracks) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Top Tracks", Value: rankLines(sum.TopTracks)})
	}
	if peak := sum.Peak(); peak != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: peak}
	}

	if thumb == "" && len(sum.TopArtists) > 0 {
		thumb = r.artistImage(ctx, sum.TopArtists[0].Artist)
	}
	setThumbnail(embed, thumb)
	return embed, nil
}

func (r *Replies) ranking(ctx context.Context, title, desc string, ranked []ledger.Ranked) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: title, Color: embedColor}
	if len(ranked) == 0 {
		embed.Description = "No listening data available."
		return embed
	}

	embed.Description = desc
	embed.Fields = []*discordgo.MessageEmbedField{{Name: "Rankings", Value: rankLines(ranked)}}
	setThumbnail(embed, r.artistImage(ctx, ranked[0].Artist))
	return embed
}

func (r *Replies) genres(ctx context.Context) (*discordgo.MessageEmbed, error) {
	genres, err := r.stats.TopGenres(ctx, stats.All, rankLimit)
	if err != nil {
		return nil, err
	}

	embed := &discordgo.MessageEmbed{Title: "Top Genres", Color: embedColor}
	if len(genres) == 0 {
		embed.Description = "No genres could be resolved from Spotify."
		return embed, nil
	}

	lines := make([]string, 0, len(genres))
	for i, g := range genres {
		lines = append(lines, fmt.Sprintf("`%d.` %s - `%s min`", i+1, g.Genre, humanize.Comma(stats.Minutes(g.Seconds))))
	}
	embed.Description = "Most listened-to genres"
	embed.Fields = []*discordgo.MessageEmbedField{{Name: "Genre Rankings", Value: strings.Join(lines, "\n")}}
	return embed, nil
}

func (r *Replies) nowPlaying(ctx context.Context) (*discordgo.MessageEmbed, error) {
	snap, err := r.player.NowPlaying(ctx)
	if err != nil {
		return nil, err
	}

	embed := &discordgo.MessageEmbed{Title: "Now Playing", Color: embedColor}
	if snap == nil {
		embed.Description = "Nothing is playing right now."
		return embed, nil
	}

	state := "Playing"
	if !snap.IsPlaying {
		state = "Paused"
	}
	embed.Description = fmt.Sprintf("[%s](%s)\nby %s\n%s at %s", snap.TrackName, snap.URL, snap.ArtistName,
		state, stats.FormatDuration(float64(snap.ProgressMs)/1000))
	setThumbnail(embed, snap.ThumbnailURL)
	return embed, nil
}

// currentlyPlaying is best effort; failures only drop the line from the embed.
func (r *Replies) currentlyPlaying(ctx context.Context) *spotify.Snapshot {
	snap, err := r.player.NowPlaying(ctx)
	if err != nil {
		r.logger.Warn("now playing lookup failed", logging.Err(err))
		return nil
	}
	return snap
}

func (r *Replies) artistImage(ctx context.Context, artist string) string {
	if r.images == nil {
		return ""
	}
	url, err := r.images.ArtistImage(ctx, artist)
	if err != nil {
		r.logger.Warn("artist image lookup failed", "artist", artist, logging.Err(err))
		return ""
	}
	return url
}

func rankLines(ranked []ledger.Ranked) string {
	lines := make([]string, 0, len(ranked))
	for i, rk := range ranked {
		name := rk.Artist
		if rk.Track != "" {
			name = rk.Track
		}
		lines = append(lines, fmt.Sprintf("`%d.` %s - `%s min`", i+1, name, humanize.Comma(stats.Minutes(rk.Seconds))))
	}
	return strings.Join(lines, "\n")
}

func setThumbnail(embed *discordgo.MessageEmbed, url string) {
	if url != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: url}
	}
}
