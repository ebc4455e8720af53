// Corpusd is a document ingestion and retrieval daemon.
//
// It chunks uploaded documents, embeds the chunks through an external
// embedding API, and serves similarity search and grounded question
// answering over HTTP. Storage is a flat JSON file by default, or Postgres
// with pgvector.
//
// Usage:
//
//	# Start the daemon
//	corpusd serve
//
//	# One-shot operations against the configured storage
//	corpusd ingest notes.txt --partition docs
//	corpusd query "how do I rotate the key" --partition docs
//	corpusd delete 4f1c9a2e-...
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the optional YAML configuration file; environment variables
// override it either way.
var configPath string

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "corpusd",
	Short: "Document ingestion and retrieval daemon",
	Long: `corpusd ingests documents, embeds their chunks, and serves similarity
search and grounded question answering over HTTP.`,
	Version:       fmt.Sprintf("%s (commit %s)", version, gitCommit),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(deleteCmd)
}
