package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

// StatusReport is the response for the status command.
type StatusReport struct {
	Project    string `json:"project"`
	RootURL    string `json:"root_url,omitempty"`
	Model      string `json:"model"`
	Dimension  int    `json:"dimension"`
	Documents  int    `json:"documents"`
	Sections   int    `json:"sections"`
	RawPages   int    `json:"raw_pages"`
	Tombstones int    `json:"tombstones"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus configuration and stored counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	root := mustFindCorpus()
	cfg := mustLoadConfig(root)

	s := mustOpenStore(root)
	defer s.Close()

	stats, err := s.Stats(cfg.Name)
	if err != nil {
		exitOnStoreError(err)
	}

	report := StatusReport{
		Project:    cfg.Name,
		RootURL:    cfg.RootURL,
		Model:      cfg.EmbeddingModel,
		Dimension:  cfg.EmbeddingDimension,
		Documents:  stats.Documents,
		Sections:   stats.Sections,
		RawPages:   stats.RawPages,
		Tombstones: stats.Tombstones,
	}

	if humanOutput {
		fmt.Printf("Project:    %s\n", report.Project)
		if report.RootURL != "" {
			fmt.Printf("Root URL:   %s\n", report.RootURL)
		}
		fmt.Printf("Model:      %s (%d dimensions)\n", report.Model, report.Dimension)
		fmt.Printf("Documents:  %d\n", report.Documents)
		fmt.Printf("Sections:   %d\n", report.Sections)
		fmt.Printf("Raw pages:  %d\n", report.RawPages)
		fmt.Printf("Tombstones: %d\n", report.Tombstones)
	} else {
		outputJSON(report)
	}
	return nil
}
