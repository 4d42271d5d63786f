// Package main provides the docf CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docf",
	Short: "Agent-first documentation retrieval engine",
	Long: `docf indexes summarized documentation into a local corpus and answers
semantic queries over it.

Summaries are chunked into addressable sections, deduplicated, embedded
via Ollama and stored in SQLite. All commands output JSON by default for
easy integration with AI agents and other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// getCorpusRoot returns the directory to search for a corpus from.
func getCorpusRoot() (string, int) {
	if root := os.Getenv("DOCF_ROOT"); root != "" {
		return root, 0
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", outputError(ExitError, "getting current directory: %v", err)
	}
	return cwd, 0
}
