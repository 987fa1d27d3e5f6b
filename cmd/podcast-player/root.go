package main

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"podcast-player/internal/catalog"
	"podcast-player/internal/config"
	"podcast-player/internal/feed"
	"podcast-player/internal/settings"
)

const lookupTimeout = 20 * time.Second

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "podcast-player",
		Short:         "Search podcasts and play episodes from a local control API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), newLogger(cmd.OutOrStdout()))
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newEpisodesCommand())

	return rootCmd
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "podcast-player ", log.LstdFlags|log.Lmsgprefix)
}

// openSettings returns the watched settings store when a settings file is
// configured, or a static one built from defaults and the environment.
func openSettings(logger *log.Logger) (*settings.Store, error) {
	file, ok, err := config.ResolveSettingsFile()
	if err != nil {
		return nil, err
	}
	if !ok {
		return settings.Static(), nil
	}
	return settings.NewStore(file, config.ReloadDebounce(), logger)
}

func newCatalogClient(client *http.Client, store *settings.Store) *catalog.Client {
	return catalog.New(client, func() catalog.Options {
		s := store.Current()
		return catalog.Options{
			BaseURL:   s.SearchBaseURL,
			Country:   s.Country,
			Limit:     s.SearchLimit,
			UserAgent: s.UserAgent,
		}
	})
}

func newFeedClient(client *http.Client, store *settings.Store) *feed.Client {
	return feed.New(client, func() string { return store.Current().UserAgent })
}
