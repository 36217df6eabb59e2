package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rm2thaddeus/devgraph/internal/config"
	"github.com/rm2thaddeus/devgraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devgraph",
	Short: "Developer Graph - temporal knowledge graph over git history",
	Long: `Developer Graph ingests a repository's git history into a temporal
knowledge graph: commits, files, rename chains, requirements derived
from commit messages, documentation chunks, and sprint windows. The
serve command exposes the graph over a windowed, paginated HTTP API.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Pipeline/CLI logger
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		// Structured file logger for the library side
		if err := logging.Initialize(logging.DefaultConfig(verbose)); err != nil {
			logger.WithError(err).Warn("Failed to initialize file logging")
		}

		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .devgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set custom version template
	rootCmd.SetVersionTemplate(`Developer Graph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(sprintsCmd)
	rootCmd.AddCommand(deriveCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(qualityCmd)
}
