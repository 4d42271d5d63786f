package main

import (
	"fmt"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/spf13/cobra"
)

var (
	initModel     string
	initDimension int
	initRootURL   string
	initReset     bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initModel, "model", config.DefaultEmbeddingModel, "Embedding model")
	initCmd.Flags().IntVar(&initDimension, "dimension", config.DefaultEmbeddingDimension, "Embedding vector dimensions")
	initCmd.Flags().StringVar(&initRootURL, "root-url", "", "Root URL of the documentation being indexed")
	initCmd.Flags().BoolVar(&initReset, "reset", false, "Destroy all indexed documents in an existing corpus")
}

var initCmd = &cobra.Command{
	Use:   "init <project-name>",
	Short: "Initialize a documentation corpus",
	Long: `Initialize a new documentation corpus in the current directory.

Creates:
  .docfoundry/
  ├── config.yml      # Project configuration
  └── corpus.db       # SQLite corpus database

With --reset, destroys all documents, sections and embeddings in an
existing corpus instead. Raw crawled pages are kept. This is the only
way to remove indexed documents.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if initReset {
		return runInitReset()
	}
	if len(args) != 1 {
		exitWithError(ExitError, "project name is required")
	}

	root, exitCode := getCorpusRoot()
	if exitCode != 0 {
		return fmt.Errorf("resolving corpus root")
	}

	if config.IsCorpus(root) {
		exitWithError(ExitError, "directory already contains a docfoundry corpus")
	}

	cfg := config.Default(args[0])
	cfg.EmbeddingModel = initModel
	cfg.EmbeddingDimension = initDimension
	cfg.RootURL = initRootURL

	if err := cfg.Save(root); err != nil {
		exitWithError(ExitConfigError, "writing config: %v", err)
	}

	s := mustOpenStore(root)
	defer s.Close()
	if _, err := s.EnsureProject(cfg.Name, cfg.RootURL, cfg.EmbeddingModel, cfg.EmbeddingDimension); err != nil {
		exitWithError(ExitError, "creating project: %v", err)
	}

	if humanOutput {
		fmt.Printf("Initialized corpus %q in %s\n", cfg.Name, root)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Project: cfg.Name, Path: root})
	}
	return nil
}

func runInitReset() error {
	root := mustFindCorpus()
	cfg := mustLoadConfig(root)

	s := mustOpenStore(root)
	defer s.Close()

	if err := s.ResetProject(cfg.Name); err != nil {
		exitOnStoreError(err)
	}

	if humanOutput {
		fmt.Printf("Reset corpus %q: all documents removed\n", cfg.Name)
	} else {
		outputJSON(StatusResponse{Status: "reset", Project: cfg.Name, Path: root})
	}
	return nil
}
