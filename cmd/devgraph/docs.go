package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/docs"
	"github.com/rm2thaddeus/devgraph/internal/gitlog"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Ingest markdown documentation into the graph",
	Long: `Discover markdown files under the configured doc roots, chunk them
by section heading, and write Document and Chunk nodes stamped with
git-derived timestamps. Requirement IDs mentioned in chunk text become
MENTIONS edges.`,
	RunE: runDocs,
}

func runDocs(cmd *cobra.Command, args []string) error {
	ctx, cancel := ingestionContext()
	defer cancel()

	repoPath, err := resolveRepo(ctx)
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	fmt.Printf("🔄 Ingesting documentation from %s\n", repoPath)

	tracker := gitlog.NewHistoryTracker(repoPath)
	result, err := docs.NewIngestor(repoPath, cfg.Docs.Roots, tracker, backend, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Documentation ingested\n")
	fmt.Printf("   Documents: %d (%d skipped)\n", result.Documents, result.Skipped)
	fmt.Printf("   Chunks:    %d\n", result.Chunks)
	fmt.Printf("   Mentions:  %d\n", result.Mentions)
	return nil
}
