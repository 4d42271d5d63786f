package main

import (
	"fmt"

	"github.com/docfoundry/docfoundry/internal/docs"
	"github.com/spf13/cobra"
)

var (
	listCategory string
	listSort     string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Show only one category")
	listCmd.Flags().StringVar(&listSort, "sort", docs.SortByCategory, "Sort order: category, title or recency")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents grouped by category",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	switch listSort {
	case docs.SortByCategory, docs.SortByTitle, docs.SortByRecency:
	default:
		exitWithError(ExitError, "unknown sort order %q", listSort)
	}

	root := mustFindCorpus()
	svc, s, _ := mustReadOnlyService(root)
	defer s.Close()

	listing, err := svc.ListDoc(docs.ListOptions{Category: listCategory, SortBy: listSort})
	if err != nil {
		exitOnStoreError(err)
	}

	if !humanOutput {
		outputJSON(listing)
		return nil
	}

	if listing.Total == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}
	fmt.Printf("%d documents\n\n", listing.Total)
	for _, group := range listing.Groups {
		fmt.Printf("%s (%d)\n", group.Category, group.Count)
		for _, doc := range group.Documents {
			fmt.Printf("  %-30s %s\n", doc.Slug, truncateString(doc.Description, ListTitleMaxLen))
		}
		fmt.Println()
	}
	return nil
}
