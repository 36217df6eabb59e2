package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rm2thaddeus/devgraph/internal/gitlog"
	"github.com/rm2thaddeus/devgraph/internal/gitsource"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/identity"
	"github.com/rm2thaddeus/devgraph/internal/storage"
)

// openBackend connects to the configured Neo4j instance
func openBackend(ctx context.Context) (*graph.Neo4jBackend, error) {
	backend, err := graph.NewNeo4jBackend(
		ctx,
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
	)
	if err != nil {
		return nil, fmt.Errorf("Neo4j connection failed: %w", err)
	}
	return backend, nil
}

// openStore connects the run ledger selected by config. An empty or
// "none" driver disables the ledger; runs still execute, unaudited.
func openStore() (storage.Store, error) {
	switch cfg.Ledger.Driver {
	case "postgres":
		if cfg.Ledger.PostgresDSN == "" {
			return nil, fmt.Errorf("ledger driver is postgres but no DSN is configured")
		}
		return storage.NewPostgresStore(cfg.Ledger.PostgresDSN, logger)
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Ledger.SQLitePath, logger)
	case "", "none":
		logger.Warn("Run ledger disabled, ingestion runs will not be recorded")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q (want postgres or sqlite)", cfg.Ledger.Driver)
	}
}

// resolveRepo returns a local working tree for the configured
// repository, cloning a remote URL into the cache directory when no
// local path is set. A URL without a branch asks GitHub for the
// default branch first.
func resolveRepo(ctx context.Context) (string, error) {
	branch := cfg.Repo.Branch
	if cfg.Repo.Path == "" && cfg.Repo.URL != "" && branch == "" {
		resolver := gitsource.NewResolver(cfg.GitHub.Token)
		discovered, err := resolver.DefaultBranch(ctx, cfg.Repo.URL)
		if err != nil {
			return "", fmt.Errorf("could not resolve default branch for %s: %w", cfg.Repo.URL, err)
		}
		branch = discovered
		logger.WithField("branch", branch).Info("Resolved default branch")
	}

	source := gitsource.NewSource(cfg.Repo.Path, cfg.Repo.URL, branch, cfg.Repo.CacheDir)
	return source.EnsureLocal(ctx)
}

// openIdentity opens the per-repository rename cache. Cache trouble is
// never fatal; a nil resolver just means git log --follow runs
// uncached.
func openIdentity(repoPath string) *identity.Resolver {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.WithError(err).Warn("No home directory, rename cache disabled")
		return nil
	}

	cachePath := filepath.Join(homeDir, ".devgraph", "identity", gitsource.CacheKey(repoPath)+".db")
	resolver, err := identity.Open(cachePath, gitlog.NewHistoryTracker(repoPath))
	if err != nil {
		logger.WithError(err).Warn("Could not open rename cache, continuing without it")
		return nil
	}
	return resolver
}
