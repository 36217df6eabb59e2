package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/analytics"
	"github.com/rm2thaddeus/devgraph/internal/api"
	"github.com/rm2thaddeus/devgraph/internal/cache"
	"github.com/rm2thaddeus/devgraph/internal/ingest"
	"github.com/rm2thaddeus/devgraph/internal/logging"
	"github.com/rm2thaddeus/devgraph/internal/query"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Developer Graph HTTP API server. The server exposes
windowed subgraph queries, commit-density buckets, sprint subgraphs,
the data-quality report, and rate-limited ingestion triggers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	repoPath, err := resolveRepo(ctx)
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	// The cache is an optimization; a missing Redis only costs latency
	redis, err := cache.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, responses will not be cached")
		redis = nil
	} else {
		defer redis.Close()
	}

	resolver := openIdentity(repoPath)
	if resolver != nil {
		defer resolver.Close()
	}

	slogger := logging.Slog()
	orchestrator := ingest.NewOrchestrator(cfg, repoPath, backend, store, resolver, logger)

	server := api.NewServer(cfg, api.Deps{
		Ingestor:  orchestrator,
		Queries:   query.NewService(backend, redis, slogger),
		Analytics: analytics.NewService(backend, store, slogger),
		Backend:   backend,
		Store:     store,
		Cache:     redis,
		Version:   Version,
	}, slogger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr": cfg.ServerAddr(),
			"repo": repoPath,
		}).Info("Starting API server")
		fmt.Printf("Developer Graph API listening on http://%s\n", cfg.ServerAddr())
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("Server error")
			return err
		}
	case sig := <-shutdown:
		logger.WithField("signal", sig.String()).Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error during shutdown")
			return err
		}
		logger.Info("Server stopped gracefully")
	}

	return nil
}
