package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/derive"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive requirement relationships from commit messages",
	Long: `Scan ingested commit messages for requirement references (FR-12,
NFR-3), create Requirement nodes, and link them to the files each
commit touched. Refactor and deprecation phrasing becomes
EVOLVES_FROM and DEPRECATED_BY edges between requirements.

Derivation is re-runnable; edges are merged, never duplicated.`,
	RunE: runDerive,
}

func runDerive(cmd *cobra.Command, args []string) error {
	ctx, cancel := ingestionContext()
	defer cancel()

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	fmt.Printf("🔄 Deriving requirement relationships\n")

	result, err := derive.NewDeriver(backend, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Derivation complete\n")
	fmt.Printf("   Commits scanned:  %d (%d matched)\n", result.CommitsScanned, result.CommitsMatched)
	fmt.Printf("   Requirements:     %d\n", result.Requirements)
	fmt.Printf("   IMPLEMENTS edges: %d\n", result.ImplementsEdges)
	fmt.Printf("   EVOLVES_FROM:     %d\n", result.EvolvesEdges)
	fmt.Printf("   DEPRECATED_BY:    %d\n", result.DeprecatedEdges)
	if result.ExcludedFiles > 0 {
		fmt.Printf("   Vendor files excluded: %d\n", result.ExcludedFiles)
	}
	return nil
}
