// Package indexer turns summarized documents into stored, embedded, searchable
// corpus entries.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/docfoundry/docfoundry/internal/chunker"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/embedding"
	"github.com/docfoundry/docfoundry/internal/slug"
	"github.com/docfoundry/docfoundry/internal/store"
)

// Document is the indexer's input: a titled, categorized summary produced by
// an upstream summarizer, plus the source pages it was distilled from.
type Document struct {
	Title      string
	Category   string
	Summary    string
	SourceURLs []string
}

// Result describes what one IndexDocument call did.
type Result struct {
	Slug       string            `json:"slug"`
	Sections   int               `json:"sections"`
	EmbedCalls int               `json:"embed_calls"`
	Skipped    bool              `json:"skipped"`
	Warnings   []chunker.Warning `json:"warnings,omitempty"`
}

// ProgressReporter receives human-readable progress during indexing.
type ProgressReporter interface {
	Report(message string)
}

type nopReporter struct{}

func (nopReporter) Report(string) {}

// Option configures an Indexer.
type Option func(*Indexer)

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(ix *Indexer) {
		if p != nil {
			ix.progress = p
		}
	}
}

// Indexer writes documents into the corpus store using a single embedding
// provider. Construct one per project.
type Indexer struct {
	store    *store.Store
	provider embedding.Provider
	cfg      *config.ProjectConfig
	project  *store.Project
	progress ProgressReporter
}

// New validates the provider against the project configuration and ensures
// the project row exists. A provider whose model or dimension disagrees with
// the configuration is rejected before anything touches the store.
func New(st *store.Store, provider embedding.Provider, cfg *config.ProjectConfig, opts ...Option) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider.ModelName() != cfg.EmbeddingModel {
		return nil, &store.ConfigMismatchError{Field: "model", Stored: cfg.EmbeddingModel, Active: provider.ModelName()}
	}
	if provider.Dimensions() != cfg.EmbeddingDimension {
		return nil, &store.ConfigMismatchError{
			Field:  "dimension",
			Stored: fmt.Sprintf("%d", cfg.EmbeddingDimension),
			Active: fmt.Sprintf("%d", provider.Dimensions()),
		}
	}

	project, err := st.EnsureProject(cfg.Name, cfg.RootURL, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		store:    st,
		provider: provider,
		cfg:      cfg,
		project:  project,
		progress: nopReporter{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Project returns the project this indexer writes to.
func (ix *Indexer) Project() *store.Project {
	return ix.project
}

// IndexDocument chunks, embeds and stores one document. Raw source pages are
// always persisted for provenance, even when the summary is unchanged and the
// rest of the work is skipped. Embedding happens before the store transaction
// opens; a provider failure leaves the previous document version fully intact.
func (ix *Indexer) IndexDocument(ctx context.Context, doc Document, rawPages []store.RawPage) (*Result, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("document title is required")
	}
	if doc.Category == "" {
		doc.Category = "General"
	}

	docSlug := slug.Make(doc.Title)

	if len(rawPages) > 0 {
		if _, err := ix.store.SaveRawPages(ix.project.ID, rawPages); err != nil {
			return nil, fmt.Errorf("saving raw pages: %w", err)
		}
	}

	hash := contentHash(doc)
	stored, err := ix.store.DocumentHash(ix.project.ID, docSlug)
	if err != nil {
		return nil, err
	}
	if stored == hash {
		ix.progress.Report(fmt.Sprintf("%s unchanged, skipping", docSlug))
		return &Result{Slug: docSlug, Skipped: true}, nil
	}

	ix.progress.Report(fmt.Sprintf("chunking %s", docSlug))
	sections, warnings := chunker.Chunk(doc.Title, doc.Summary, chunker.Options{
		MaxSectionSize: ix.cfg.MaxSectionSize,
		DedupThreshold: ix.cfg.DedupThreshold,
		ShingleSize:    chunker.DefaultOptions().ShingleSize,
	})
	if len(sections) == 0 {
		return nil, fmt.Errorf("document %s produced no sections", docSlug)
	}

	// One embedding per distinct text. The summary and any sections sharing
	// identical content resolve to the same vector without extra calls.
	texts := []string{doc.Summary}
	for _, sec := range sections {
		texts = append(texts, sec.Content)
	}
	unique := make([]string, 0, len(texts))
	indexOf := make(map[string]int, len(texts))
	for _, text := range texts {
		if _, ok := indexOf[text]; ok {
			continue
		}
		indexOf[text] = len(unique)
		unique = append(unique, text)
	}

	ix.progress.Report(fmt.Sprintf("embedding %d texts for %s", len(unique), docSlug))
	vectors, err := ix.provider.EmbedBatch(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", docSlug, err)
	}
	if len(vectors) != len(unique) {
		return nil, fmt.Errorf("embedding %s: got %d vectors for %d texts", docSlug, len(vectors), len(unique))
	}

	record := store.DocumentRecord{
		Slug:        docSlug,
		ProjectID:   ix.project.ID,
		Title:       doc.Title,
		Category:    doc.Category,
		Summary:     doc.Summary,
		ContentHash: hash,
		Embedding:   vectors[indexOf[doc.Summary]].Vector,
		SourceURLs:  doc.SourceURLs,
	}

	secRecords := make([]store.SectionRecord, 0, len(sections))
	for _, sec := range sections {
		secRecords = append(secRecords, store.SectionRecord{
			SectionID: sec.ID,
			Slug:      docSlug,
			Title:     sec.Title,
			Content:   sec.Content,
			Position:  sec.Position,
			Keywords:  sec.Keywords,
			Embedding: vectors[indexOf[sec.Content]].Vector,
		})
	}

	ix.progress.Report(fmt.Sprintf("storing %s (%d sections)", docSlug, len(secRecords)))
	if err := ix.store.ReplaceDocument(record, secRecords); err != nil {
		return nil, err
	}

	return &Result{
		Slug:       docSlug,
		Sections:   len(secRecords),
		EmbedCalls: len(unique),
		Warnings:   warnings,
	}, nil
}

// RetireDocument removes a document, tombstoning its slug. Used when a source
// page disappears or a document is folded into another.
func (ix *Indexer) RetireDocument(slugName, replacedBy string) error {
	return ix.store.RetireDocument(ix.project.ID, slugName, replacedBy)
}

// contentHash fingerprints the indexable content of a document. Source URLs
// are excluded so provenance-only updates don't force a re-embed.
func contentHash(doc Document) string {
	h := sha256.New()
	h.Write([]byte(doc.Title))
	h.Write([]byte{0})
	h.Write([]byte(doc.Category))
	h.Write([]byte{0})
	h.Write([]byte(doc.Summary))
	return hex.EncodeToString(h.Sum(nil))
}
