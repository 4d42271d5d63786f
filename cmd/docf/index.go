package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docfoundry/docfoundry/internal/indexer"
	"github.com/docfoundry/docfoundry/internal/store"
	"github.com/spf13/cobra"
)

var (
	indexCategory   string
	indexTitle      string
	indexSourceURLs []string
	noProgress      bool
)

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringVarP(&indexCategory, "category", "c", "", "Category for the indexed documents")
	indexCmd.Flags().StringVarP(&indexTitle, "title", "t", "", "Document title (single file only; default: first heading)")
	indexCmd.Flags().StringArrayVar(&indexSourceURLs, "source-url", nil, "Source URL the summary was distilled from (repeatable)")
	indexCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
}

// IndexFileResult is one file's outcome in the index command response.
type IndexFileResult struct {
	File       string   `json:"file"`
	Slug       string   `json:"slug"`
	Sections   int      `json:"sections"`
	EmbedCalls int      `json:"embed_calls"`
	Skipped    bool     `json:"skipped"`
	Warnings   []string `json:"warnings,omitempty"`
}

// IndexResponse is the response for the index command.
type IndexResponse struct {
	Status          string            `json:"status"`
	Indexed         int               `json:"indexed"`
	Skipped         int               `json:"skipped"`
	DurationSeconds float64           `json:"duration_seconds"`
	Model           string            `json:"model"`
	Results         []IndexFileResult `json:"results"`
}

var indexCmd = &cobra.Command{
	Use:   "index <summary.md>...",
	Short: "Index summarized documents into the corpus",
	Long: `Index one or more markdown summaries into the corpus.

Each file becomes one document: its first heading (or filename) names it,
the content is chunked into sections, deduplicated, embedded via Ollama
and stored atomically. Re-indexing an unchanged file is a no-op.

Requires Ollama to be running with the configured embedding model.
Run 'ollama pull all-minilm:l6-v2' to download the default model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

// progressFunc adapts a closure to the indexer's progress interface.
type progressFunc func(string)

func (f progressFunc) Report(message string) { f(message) }

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if indexTitle != "" && len(args) > 1 {
		exitWithError(ExitError, "--title applies to a single file, got %d", len(args))
	}

	root := mustFindCorpus()
	cfg := mustLoadConfig(root)
	provider := mustProvider(ctx, cfg)

	s := mustOpenStore(root)
	defer s.Close()

	var opts []indexer.Option
	if humanOutput && !noProgress {
		opts = append(opts, indexer.WithProgress(progressFunc(func(msg string) {
			fmt.Fprintf(os.Stderr, "%s\n", msg)
		})))
	}

	ix, err := indexer.New(s, provider, cfg, opts...)
	if err != nil {
		exitOnStoreError(err)
	}

	start := time.Now()
	resp := IndexResponse{Status: "indexed", Model: cfg.EmbeddingModel}
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			exitWithError(ExitError, "reading %s: %v", path, err)
		}

		doc := indexer.Document{
			Title:      documentTitle(path, string(content)),
			Category:   indexCategory,
			Summary:    string(content),
			SourceURLs: indexSourceURLs,
		}
		var pages []store.RawPage
		for _, url := range indexSourceURLs {
			pages = append(pages, store.RawPage{URL: url, Title: doc.Title, Content: string(content)})
		}

		res, err := ix.IndexDocument(ctx, doc, pages)
		if err != nil {
			exitOnStoreError(err)
		}

		fileResult := IndexFileResult{
			File:       path,
			Slug:       res.Slug,
			Sections:   res.Sections,
			EmbedCalls: res.EmbedCalls,
			Skipped:    res.Skipped,
		}
		for _, w := range res.Warnings {
			fileResult.Warnings = append(fileResult.Warnings, fmt.Sprintf("%s: %s", w.SectionTitle, w.Message))
		}
		resp.Results = append(resp.Results, fileResult)
		if res.Skipped {
			resp.Skipped++
		} else {
			resp.Indexed++
		}
	}
	resp.DurationSeconds = time.Since(start).Seconds()

	if humanOutput {
		fmt.Printf("\nIndex complete:\n")
		fmt.Printf("  Indexed: %d\n", resp.Indexed)
		fmt.Printf("  Skipped: %d (unchanged)\n", resp.Skipped)
		fmt.Printf("  Duration: %.1fs\n", resp.DurationSeconds)
		for _, r := range resp.Results {
			for _, w := range r.Warnings {
				fmt.Printf("  warning: %s: %s\n", r.Slug, w)
			}
		}
	} else {
		outputJSON(resp)
	}
	return nil
}

// documentTitle derives a title from the explicit flag, the first markdown
// heading, or the filename.
func documentTitle(path, content string) string {
	if indexTitle != "" {
		return indexTitle
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "-", " ")
}
