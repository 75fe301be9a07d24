package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/1mb-dev/listenlog/internal/stats"
)

func newStatsCmd() *cobra.Command {
	var (
		asJSON bool
		top    string
		limit  int
	)

	cmd := &cobra.Command{
		Use:       "stats [period]",
		Short:     "Print a listening summary for a period (default today)",
		Long:      "Print a listening summary. Periods: today, yesterday, week, lastweek, month, lastmonth, year, all.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: stats.Periods,
		RunE: func(cmd *cobra.Command, args []string) error {
			period := stats.Today
			if len(args) == 1 {
				period = args[0]
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Genres need Spotify search; everything else reads the ledger only
			withSpotify := top == "genres"
			if withSpotify {
				if err := cfg.RequireCredentials(); err != nil {
					return err
				}
			}

			a, err := wireApp(cfg, logger, withSpotify)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var (
				out  any
				text string
			)
			switch top {
			case "":
				sum, err := a.stats.Summary(ctx, period)
				if err != nil {
					return err
				}
				out, text = sum, sum.Text()
			case "tracks":
				ranked, err := a.stats.TopTracks(ctx, period, limit)
				if err != nil {
					return err
				}
				out, text = ranked, stats.RankedText("Top Tracks", ranked)
			case "artists":
				ranked, err := a.stats.TopArtists(ctx, period, limit)
				if err != nil {
					return err
				}
				out, text = ranked, stats.RankedText("Top Artists", ranked)
			case "genres":
				genres, err := a.stats.TopGenres(ctx, period, limit)
				if err != nil {
					return err
				}
				out, text = genres, stats.GenreText(genres)
			default:
				return fmt.Errorf("unknown --top value %q (want tracks, artists or genres)", top)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	cmd.Flags().StringVar(&top, "top", "", "print a ranking instead of the summary: tracks, artists or genres")
	cmd.Flags().IntVar(&limit, "limit", 10, "ranking length for --top")
	return cmd
}
