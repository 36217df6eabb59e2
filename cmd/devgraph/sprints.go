package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/sprints"
)

var sprintsFile string

var sprintsCmd = &cobra.Command{
	Use:   "sprints",
	Short: "Map sprint windows onto ingested commits",
	Long: `Load sprint definitions from YAML, resolve their date windows, and
link every commit inside a window to its Sprint node. Definitions
without an end date get one inferred from the next sprint's start.

Run bootstrap first; sprint mapping links commits that already exist
in the graph.`,
	RunE: runSprints,
}

func init() {
	sprintsCmd.Flags().StringVar(&sprintsFile, "file", "", "sprint definitions YAML (default: sprints.definitions_path)")
}

func runSprints(cmd *cobra.Command, args []string) error {
	ctx, cancel := ingestionContext()
	defer cancel()

	path := sprintsFile
	if path == "" {
		path = cfg.Sprints.DefinitionsPath
	}
	if path == "" {
		return fmt.Errorf("no sprint definitions configured: pass --file or set sprints.definitions_path")
	}

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	fmt.Printf("🔄 Mapping sprints from %s\n", path)

	result, err := sprints.NewMapper(backend, logger).MapFromFile(ctx, path, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Mapped %d sprints, linked %d commits\n", result.SprintsMapped, result.CommitsLinked)
	for number, count := range result.CommitsPerSprint {
		fmt.Printf("   sprint %-3d %d commits\n", number, count)
	}
	for _, skipped := range result.Skipped {
		fmt.Printf("   ⚠️  skipped sprint %d: %s\n", skipped.Number, skipped.Reason)
	}
	return nil
}
