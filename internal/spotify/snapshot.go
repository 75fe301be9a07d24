package spotify

import (
	"fmt"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
)

// Snapshot is one poll's observation of remote playback state.
//
// Identity is the (TrackName, ArtistName) pair. Two different songs sharing
// both names are indistinguishable.
type Snapshot struct {
	TrackName    string    `json:"track"`
	ArtistName   string    `json:"artist"`
	URL          string    `json:"url,omitempty"`
	ThumbnailURL string    `json:"thumbnail,omitempty"`
	ProgressMs   int64     `json:"progress_ms"`
	IsPlaying    bool      `json:"is_playing"`
	CapturedAt   time.Time `json:"captured_at"`
}

// SameTrack reports whether s has the given identity.
func (s *Snapshot) SameTrack(track, artist string) bool {
	return s.TrackName == track && s.ArtistName == artist
}

// snapshotFrom normalizes a currently-playing payload. A payload without a
// track item (ads, podcast episodes) yields nil.
func snapshotFrom(cp *spotifyapi.CurrentlyPlaying, now time.Time) (*Snapshot, error) {
	if cp == nil || cp.Item == nil {
		return nil, nil
	}

	item := cp.Item
	if len(item.Artists) == 0 {
		return nil, fmt.Errorf("%w: track %q has no artists", ErrMalformedPayload, item.Name)
	}

	progress := int64(cp.Progress)
	if progress < 0 {
		return nil, fmt.Errorf("%w: negative progress %d", ErrMalformedPayload, progress)
	}

	s := &Snapshot{
		TrackName:  item.Name,
		ArtistName: item.Artists[0].Name,
		URL:        item.ExternalURLs["spotify"],
		ProgressMs: progress,
		IsPlaying:  cp.Playing,
		CapturedAt: now,
	}
	if len(item.Album.Images) > 0 {
		s.ThumbnailURL = item.Album.Images[0].URL
	}
	return s, nil
}
