package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/ingest"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

var ingestLimit int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest only the most recent commits",
	Long: `Extract and merge the N most recent commits, then refresh rename
chains and derived relationships. Documents and sprint mapping are
full-repository concerns and only run during bootstrap.

Examples:
  # Pick up the latest 50 commits (config default)
  devgraph ingest

  # Pick up a deeper slice after a long gap
  devgraph ingest --limit 500`,
	RunE: runIngestRecent,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "number of recent commits (default: ingest.recent_limit)")
}

func runIngestRecent(cmd *cobra.Command, args []string) error {
	ctx, cancel := ingestionContext()
	defer cancel()

	repoPath, err := resolveRepo(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("🔄 Developer Graph incremental ingest\n")
	fmt.Printf("   Repository: %s\n", repoPath)

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

	resolver := openIdentity(repoPath)
	if resolver != nil {
		defer resolver.Close()
	}

	orchestrator := ingest.NewOrchestrator(cfg, repoPath, backend, store, resolver, logger)
	result, err := orchestrator.IngestRecent(ctx, ingestLimit, "cli")
	if err != nil {
		return err
	}

	printPipelineResult(result)
	if result.Status == models.RunStatusFailed {
		return fmt.Errorf("ingest failed, see stage report above")
	}
	return nil
}
