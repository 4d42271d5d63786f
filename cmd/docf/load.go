package main

import (
	"fmt"
	"strings"

	"github.com/docfoundry/docfoundry/internal/docs"
	"github.com/spf13/cobra"
)

var (
	loadSections bool
	loadMetadata bool
)

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().BoolVar(&loadSections, "sections", false, "Include individual sections")
	loadCmd.Flags().BoolVar(&loadMetadata, "metadata", false, "Include provenance metadata")
}

var loadCmd = &cobra.Command{
	Use:   "load <slug>...",
	Short: "Load documents by slug",
	Long: `Load one or more documents by their slug.

Each slug resolves independently: unknown slugs yield a not_found record
with nearest-slug suggestions, retired slugs name their replacement.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	root := mustFindCorpus()
	svc, s, _ := mustReadOnlyService(root)
	defer s.Close()

	out, err := svc.LoadDoc(args, docs.LoadOptions{
		IncludeSections: loadSections,
		IncludeMetadata: loadMetadata,
	})
	if err != nil {
		exitOnStoreError(err)
	}

	if !humanOutput {
		outputJSON(out)
		return nil
	}

	for _, doc := range out {
		switch doc.Status {
		case docs.StatusOK:
			fmt.Printf("== %s (%s, %s)\n\n", doc.Title, doc.Slug, doc.Category)
			fmt.Println(doc.Summary)
			for _, sec := range doc.Sections {
				fmt.Printf("\n-- %s (%s)\n%s\n", sec.Title, sec.SectionID, sec.Content)
			}
			if doc.Metadata != nil {
				fmt.Printf("\nupdated: %s", doc.Metadata.UpdatedAt.Format("2006-01-02"))
				if len(doc.Metadata.SourceURLs) > 0 {
					fmt.Printf("  sources: %s", strings.Join(doc.Metadata.SourceURLs, ", "))
				}
				fmt.Println()
			}
		case docs.StatusRetired:
			if doc.ReplacedBy != "" {
				fmt.Printf("== %s: retired, see %q\n", doc.Slug, doc.ReplacedBy)
			} else {
				fmt.Printf("== %s: retired\n", doc.Slug)
			}
		default:
			fmt.Printf("== %s: not found", doc.Slug)
			if len(doc.Suggestions) > 0 {
				fmt.Printf(" (did you mean: %s)", strings.Join(doc.Suggestions, ", "))
			}
			fmt.Println()
		}
		fmt.Println()
	}
	return nil
}
