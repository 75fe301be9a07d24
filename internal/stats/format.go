package stats

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/1mb-dev/listenlog/internal/ledger"
)

// Minutes rounds seconds to whole minutes.
func Minutes(seconds float64) int64 {
	return int64(math.Round(seconds / 60))
}

// FormatDuration renders seconds as "1,234h 5m", "12m" or "40s".
func FormatDuration(seconds float64) string {
	d := time.Duration(math.Round(seconds)) * time.Second
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int64(d.Minutes()))
	default:
		h := int64(d.Hours())
		m := int64(d.Minutes()) % 60
		return fmt.Sprintf("%sh %dm", humanize.Comma(h), m)
	}
}

// RankedText renders a top list under title. Track rows show the track
// and artist, artist rows the artist only.
func RankedText(title string, items []ledger.Ranked) string {
	if len(items) == 0 {
		return "No listening data available."
	}
	var b strings.Builder
	b.WriteString(title + "\n")
	for i, it := range items {
		name := it.Artist
		if it.Track != "" {
			name = it.Track + " by " + it.Artist
		}
		fmt.Fprintf(&b, "%d. %s - %s min\n", i+1, name, humanize.Comma(Minutes(it.Seconds)))
	}
	return b.String()
}

// Text renders the summary as plain text.
func (s *Summary) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You have listened for %s minutes %s.\n", humanize.Comma(Minutes(s.TotalSeconds)), s.Label)

	if len(s.TopArtists) > 0 {
		b.WriteString("\nTop Artists\n")
		for i, a := range s.TopArtists {
			fmt.Fprintf(&b, "%d. %s - %s min\n", i+1, a.Artist, humanize.Comma(Minutes(a.Seconds)))
		}
	}
	if len(s.TopTracks) > 0 {
		b.WriteString("\nTop Tracks\n")
		for i, t := range s.TopTracks {
			fmt.Fprintf(&b, "%d. %s by %s - %s min\n", i+1, t.Track, t.Artist, humanize.Comma(Minutes(t.Seconds)))
		}
	}
	if peak := s.Peak(); peak != "" {
		fmt.Fprintf(&b, "\n%s\n", peak)
	}
	return b.String()
}

// Peak describes the busiest breakdown slot, or "" when nothing was played.
func (s *Summary) Peak() string {
	best, idx := 0.0, -1
	for i, m := range s.Breakdown {
		if m > best {
			best, idx = m, i
		}
	}
	if idx < 0 {
		return ""
	}

	mins := humanize.Comma(int64(math.Round(best)))
	switch s.Bucket {
	case "hour":
		return fmt.Sprintf("Peak hour: %02d:00 (%s min)", idx, mins)
	case "weekday":
		// slot 0 is Monday
		return fmt.Sprintf("Busiest day: %s (%s min)", time.Weekday((idx+1)%7), mins)
	case "day":
		return fmt.Sprintf("Busiest day: the %s (%s min)", humanize.Ordinal(idx+1), mins)
	default:
		return fmt.Sprintf("Busiest month: %s (%s min)", time.Month(idx+1), mins)
	}
}

// GenreText renders a genre ranking as plain text.
func GenreText(genres []GenreTotal) string {
	if len(genres) == 0 {
		return "No genres could be resolved."
	}
	var b strings.Builder
	b.WriteString("Top Genres\n")
	for i, g := range genres {
		fmt.Fprintf(&b, "%d. %s - %s min\n", i+1, g.Genre, humanize.Comma(Minutes(g.Seconds)))
	}
	return b.String()
}
