package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retireReplacedBy string

func init() {
	rootCmd.AddCommand(retireCmd)

	retireCmd.Flags().StringVar(&retireReplacedBy, "replaced-by", "", "Slug that supersedes the retired document")
}

// RetireResponse is the response for the retire command.
type RetireResponse struct {
	Status     string `json:"status"`
	Slug       string `json:"slug"`
	ReplacedBy string `json:"replaced_by,omitempty"`
}

var retireCmd = &cobra.Command{
	Use:   "retire <slug>",
	Short: "Retire a document, tombstoning its slug",
	Long: `Remove a document and permanently retire its slug.

Retired slugs are never reused. Loads of a retired slug report the
replacement named with --replaced-by, if any.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetire,
}

func runRetire(cmd *cobra.Command, args []string) error {
	root := mustFindCorpus()
	cfg := mustLoadConfig(root)

	s := mustOpenStore(root)
	defer s.Close()

	project, err := s.GetProject(cfg.Name)
	if err != nil {
		exitOnStoreError(err)
	}

	if err := s.RetireDocument(project.ID, args[0], retireReplacedBy); err != nil {
		exitOnStoreError(err)
	}

	if humanOutput {
		fmt.Printf("Retired %q", args[0])
		if retireReplacedBy != "" {
			fmt.Printf(" (replaced by %q)", retireReplacedBy)
		}
		fmt.Println()
	} else {
		outputJSON(RetireResponse{Status: "retired", Slug: args[0], ReplacedBy: retireReplacedBy})
	}
	return nil
}
