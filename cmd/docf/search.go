package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/docfoundry/docfoundry/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchCategory string
	searchLimit    int
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "Restrict results to a category")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", search.DefaultLimit, "Maximum number of documents")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the corpus by meaning",
	Long: `Search indexed documents using semantic similarity.

The query is embedded and scored against every document and section;
keyword overlap is blended in per the project's hybrid_alpha. When the
embedding backend is unreachable the search degrades to keyword-only
matching and says so in the response.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.TrimSpace(args[0])
	if query == "" {
		exitWithError(ExitError, "search query cannot be empty")
	}

	root := mustFindCorpus()
	svc, s, _ := mustService(ctx, root)
	defer s.Close()

	result, err := svc.SearchDoc(ctx, query, search.Filters{Category: searchCategory}, searchLimit)
	if err != nil {
		exitOnStoreError(err)
	}

	if !humanOutput {
		outputJSON(result)
		return nil
	}

	fmt.Printf("Search: %q\n", query)
	if result.Degraded {
		fmt.Println("(embedding backend unavailable, keyword-only results)")
	}
	if len(result.Matches) == 0 {
		fmt.Println("No matches.")
		if len(result.SuggestedCategories) > 0 {
			fmt.Printf("Try listing these categories: %s\n", strings.Join(result.SuggestedCategories, ", "))
		}
		return nil
	}
	fmt.Printf("Found %d documents\n\n", len(result.Matches))
	for i, m := range result.Matches {
		fmt.Printf("%d. [%.2f] %s (%s)\n", i+1, m.Score, m.Slug, m.Category)
		fmt.Printf("   %s\n", truncateString(m.Title, SearchTitleMaxLen))
		for _, sec := range m.Sections {
			fmt.Printf("   - [%.2f] %s: %s\n", sec.Score, sec.SectionID, truncateString(sec.Preview, SearchTitleMaxLen))
		}
		fmt.Println()
	}
	return nil
}
