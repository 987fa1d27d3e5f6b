package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"podcast-player/internal/models"
)

func newSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search the podcast directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(io.Discard)
			store, err := openSettings(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
			defer cancel()

			client := newCatalogClient(&http.Client{}, store)
			shows, err := client.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(shows) == 0 {
				fmt.Fprintln(out, "No shows found")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Author", "Feed"}, showRows(shows), nil))
			return nil
		},
	}
	return cmd
}

func newEpisodesCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "episodes <feed-url>",
		Short: "List the episodes of a show feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(io.Discard)
			store, err := openSettings(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
			defer cancel()

			episodes, err := newFeedClient(&http.Client{}, store).Fetch(ctx, args[0])
			if err != nil {
				return err
			}
			if limit > 0 && len(episodes) > limit {
				episodes = episodes[:limit]
			}

			out := cmd.OutOrStdout()
			if len(episodes) == 0 {
				fmt.Fprintln(out, "No episodes found")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Title", "Published", "Duration", "Audio"},
				episodeRows(episodes),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of episodes to list (0 for all)")
	return cmd
}

func showRows(shows []models.Show) [][]string {
	rows := make([][]string, 0, len(shows))
	for _, show := range shows {
		rows = append(rows, []string{show.ID, show.Title, show.Author, show.FeedURL})
	}
	return rows
}

func episodeRows(episodes []models.Episode) [][]string {
	rows := make([][]string, 0, len(episodes))
	for i, ep := range episodes {
		published := "-"
		if !ep.PublishedAt.IsZero() {
			published = ep.PublishedAt.Format("2006-01-02")
		}
		audio := "no"
		if ep.HasAudio() {
			audio = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), ep.Title, published, formatDuration(ep.DurationSeconds), audio})
	}
	return rows
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int64(seconds + 0.5)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
