package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podcast-player/internal/browse"
	"podcast-player/internal/config"
	"podcast-player/internal/controller"
	"podcast-player/internal/fetch"
	"podcast-player/internal/metadata"
	"podcast-player/internal/metrics"
	"podcast-player/internal/playback/speaker"
	"podcast-player/internal/server"
	"podcast-player/internal/staging"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the playback controller behind the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), newLogger(cmd.OutOrStdout()))
		},
	}
}

func runServe(parent context.Context, logger *log.Logger) error {
	listenAddr := config.ListenAddr()
	if err := config.ValidateListenAddr(listenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	store, err := openSettings(logger)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("error closing settings: %v", err)
		}
	}()
	current := store.Current()

	stagingRoot, err := config.StagingDir()
	if err != nil {
		return fmt.Errorf("resolve staging dir: %w", err)
	}
	stage, err := staging.Open(stagingRoot, logger)
	if err != nil {
		return fmt.Errorf("open staging dir: %w", err)
	}
	defer func() {
		if err := stage.Close(); err != nil {
			logger.Printf("error closing staging dir: %v", err)
		}
	}()

	m := metrics.New()

	fetcher := fetch.New(fetch.Options{
		UserAgent: current.UserAgent,
		MaxBytes:  current.MaxAudioBytes,
		Logger:    logger,
		Metrics:   m,
	})

	engine := speaker.New(logger)
	defer engine.Close()

	ctrl, err := controller.New(controller.Options{
		Fetcher:      fetcher,
		Stager:       stage,
		Engine:       engine,
		Inspect:      metadata.Inspect,
		Logger:       logger,
		Debug:        config.Debug(),
		Metrics:      m,
		PollInterval: config.PollInterval(),
	})
	if err != nil {
		return fmt.Errorf("initialise controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Printf("error closing controller: %v", err)
		}
	}()

	lookupClient := &http.Client{Timeout: lookupTimeout}
	browser := browse.New(newCatalogClient(lookupClient, store), newFeedClient(lookupClient, store), logger)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.New(ctrl, browser, m.Handler(), logger),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	logger.Printf("listening on %s (staging directory: %s)", listenAddr, stage.Root())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	logger.Println("shutdown complete")
	return nil
}
