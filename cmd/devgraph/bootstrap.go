package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/ingest"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the full ingestion pipeline",
	Long: `Run the full ingestion pipeline: schema setup, git history
extraction, commit and file ingestion, rename chains, documentation,
derived requirement relationships, and sprint mapping.

Bootstrap is idempotent; every write is a keyed MERGE, so re-running
it against the same repository updates instead of duplicating.

Examples:
  # Ingest the repository configured in .devgraph/config.yaml
  devgraph bootstrap

  # Ingest a specific working copy
  REPO_PATH=~/src/myrepo devgraph bootstrap`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, cancel := ingestionContext()
	defer cancel()

	repoPath, err := resolveRepo(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("🔄 Developer Graph bootstrap\n")
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
	result, err := orchestrator.Bootstrap(ctx, "cli")
	if err != nil {
		return err
	}

	printPipelineResult(result)
	if result.Status == models.RunStatusFailed {
		return fmt.Errorf("bootstrap failed, see stage report above")
	}
	return nil
}

// ingestionContext bounds a pipeline run with the configured timeout
func ingestionContext() (context.Context, context.CancelFunc) {
	if cfg.Ingest.Timeout > 0 {
		return context.WithTimeout(context.Background(), cfg.Ingest.Timeout)
	}
	return context.WithCancel(context.Background())
}

// printPipelineResult renders the per-stage outcome of a run
func printPipelineResult(result *ingest.PipelineResult) {
	if result.Status == models.RunStatusCompleted {
		fmt.Printf("\n✅ Run %s completed in %s\n", result.RunID, time.Duration(result.DurationMS)*time.Millisecond)
	} else {
		fmt.Printf("\n❌ Run %s %s after %s\n", result.RunID, result.Status, time.Duration(result.DurationMS)*time.Millisecond)
	}

	fmt.Printf("\n📊 Stages:\n")
	for _, stage := range result.Stages {
		switch stage.Status {
		case models.StageStatusFailed:
			fmt.Printf("   %-10s %s: %s\n", stage.Stage, stage.Status, stage.Error)
		case models.StageStatusSkipped:
			fmt.Printf("   %-10s %s\n", stage.Stage, stage.Status)
		default:
			fmt.Printf("   %-10s %s (%d processed, %d created)\n", stage.Stage, stage.Status, stage.Processed, stage.Created)
		}
	}

	fmt.Printf("\n   Graph: %d commits, %d files, %d edges\n", result.Commits, result.Files, result.Edges)
}
