package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/analytics"
	"github.com/rm2thaddeus/devgraph/internal/logging"
)

var qualityBackfill bool

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Audit graph data quality",
	Long: `Run the consolidated data-quality audit: node and edge counts by
type, null identity stamps, temporal edges missing timestamps,
orphaned files, malformed requirement IDs, and commits outside every
sprint window. The report is persisted to the run ledger.

With --backfill, nodes missing identity stamps are repaired first.`,
	RunE: runQuality,
}

func init() {
	qualityCmd.Flags().BoolVar(&qualityBackfill, "backfill", false, "repair missing identity stamps before auditing")
}

func runQuality(cmd *cobra.Command, args []string) error {
	ctx, cancel := ingestionContext()
	defer cancel()

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

	service := analytics.NewService(backend, store, logging.Slog())

	if qualityBackfill {
		fmt.Printf("🔄 Backfilling identity stamps\n")
		backfill, err := service.BackfillStamps(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("   Scanned %d defective nodes, repaired %d, skipped %d\n\n",
			backfill.Scanned, backfill.Repaired, backfill.Skipped)
	}

	report, err := service.DataQuality(ctx)
	if err != nil {
		return err
	}

	if report.Healthy {
		fmt.Printf("✅ Graph is healthy (%d nodes, %d edges)\n", report.TotalNodes, report.TotalEdges)
	} else {
		fmt.Printf("⚠️  Graph has quality findings (%d nodes, %d edges)\n", report.TotalNodes, report.TotalEdges)
	}

	fmt.Printf("\n📊 Nodes by label:\n")
	for _, label := range sortedKeys(report.NodesByLabel) {
		fmt.Printf("   %-14s %d\n", label, report.NodesByLabel[label])
	}
	fmt.Printf("\n📊 Edges by type:\n")
	for _, edge := range sortedKeys(report.EdgesByType) {
		fmt.Printf("   %-14s %d\n", edge, report.EdgesByType[edge])
	}

	fmt.Printf("\n🔎 Findings:\n")
	fmt.Printf("   Null identity stamps:      %d\n", report.NullStampNodes)
	fmt.Printf("   Edges missing timestamps:  %d\n", report.MissingEdgeTimestamps)
	fmt.Printf("   Orphaned files:            %d\n", report.OrphanedFiles)
	fmt.Printf("   Invalid requirement IDs:   %d\n", report.InvalidRequirements)
	fmt.Printf("   Commits outside sprints:   %d\n", report.UnmappedCommits)

	if !report.Healthy && report.NullStampNodes > 0 && !qualityBackfill {
		fmt.Printf("\n💡 Run 'devgraph quality --backfill' to repair identity stamps\n")
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
