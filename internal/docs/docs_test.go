package docs

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/embedding"
	"github.com/docfoundry/docfoundry/internal/search"
	"github.com/docfoundry/docfoundry/internal/store"
)

type fixedProvider struct {
	vectors map[string][]float32
}

func (f *fixedProvider) Embed(_ context.Context, text string) (embedding.Embedding, error) {
	if v, ok := f.vectors[text]; ok {
		return embedding.Embedding{Vector: v}, nil
	}
	return embedding.Embedding{Vector: []float32{0, 0, 0, 1}}, nil
}

func (f *fixedProvider) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Embedding, error) {
	out := make([]embedding.Embedding, 0, len(texts))
	for _, t := range texts {
		e, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fixedProvider) ModelName() string { return "fake-embed" }
func (f *fixedProvider) Dimensions() int   { return 4 }

func testConfig() *config.ProjectConfig {
	cfg := config.Default("sequelize")
	cfg.EmbeddingModel = "fake-embed"
	cfg.EmbeddingDimension = 4
	cfg.HybridAlpha = 1.0
	return cfg
}

func newService(t *testing.T, provider *fixedProvider) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p, err := s.EnsureProject("sequelize", "", "fake-embed", 4)
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	err = s.ReplaceDocument(store.DocumentRecord{
		Slug:        "model-associations",
		ProjectID:   p.ID,
		Title:       "Model Associations",
		Category:    "Core Concepts",
		Summary:     "# Model Associations\n\nSequelize supports the standard associations between models.",
		ContentHash: "a1",
		Embedding:   []float32{0, 1, 0, 0},
		SourceURLs:  []string{"https://sequelize.org/docs/associations"},
	}, []store.SectionRecord{
		{
			SectionID: "s01-eager-loading",
			Slug:      "model-associations",
			Title:     "Eager Loading",
			Content:   "Eager loading fetches associated models in one query.",
			Position:  1,
			Keywords:  []string{"include"},
			Embedding: []float32{0, 1, 0, 0},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceDocument associations: %v", err)
	}

	err = s.ReplaceDocument(store.DocumentRecord{
		Slug:        "transactions",
		ProjectID:   p.ID,
		Title:       "Transactions",
		Category:    "Advanced",
		Summary:     "# Transactions\n\nTransactions group statements into an atomic unit of work.",
		ContentHash: "t1",
		Embedding:   []float32{1, 0, 0, 0},
	}, []store.SectionRecord{
		{
			SectionID: "s01-overview",
			Slug:      "transactions",
			Title:     "Overview",
			Content:   "Transactions group statements into an atomic unit of work.",
			Position:  1,
			Embedding: []float32{1, 0, 0, 0},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceDocument transactions: %v", err)
	}

	cfg := testConfig()
	engine, err := search.New(s, provider, cfg)
	if err != nil {
		t.Fatalf("search.New: %v", err)
	}
	return New(s, engine, cfg), s
}

func TestSearchDoc_TagsOutcome(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{vectors: map[string][]float32{
		"how do transactions work": {1, 0, 0, 0},
		"completely unrelated":     {0, 0, 1, 0},
	}})

	hit, err := svc.SearchDoc(context.Background(), "how do transactions work", search.Filters{}, 5)
	if err != nil {
		t.Fatalf("SearchDoc: %v", err)
	}
	if hit.Status != StatusOK {
		t.Errorf("hit status = %q, want ok", hit.Status)
	}
	if len(hit.Matches) == 0 || hit.Matches[0].Slug != "transactions" {
		t.Errorf("matches = %+v", hit.Matches)
	}

	miss, err := svc.SearchDoc(context.Background(), "completely unrelated", search.Filters{}, 5)
	if err != nil {
		t.Fatalf("SearchDoc miss: %v", err)
	}
	if miss.Status != StatusNoMatches {
		t.Errorf("miss status = %q, want no_matches", miss.Status)
	}
	if len(miss.Matches) != 0 {
		t.Errorf("miss returned %d matches", len(miss.Matches))
	}
}

func TestLoadDoc_FullDocument(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{})

	out, err := svc.LoadDoc([]string{"model-associations"}, LoadOptions{
		IncludeSections: true,
		IncludeMetadata: true,
	})
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}

	doc := out[0]
	if doc.Status != StatusOK {
		t.Fatalf("status = %q, want ok", doc.Status)
	}
	if doc.Title != "Model Associations" {
		t.Errorf("title = %q", doc.Title)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].SectionID != "s01-eager-loading" {
		t.Errorf("sections = %+v", doc.Sections)
	}
	if doc.Metadata == nil || doc.Metadata.ContentHash != "a1" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if len(doc.Metadata.SourceURLs) != 1 {
		t.Errorf("source urls = %v", doc.Metadata.SourceURLs)
	}
}

func TestLoadDoc_OmitsSectionsByDefault(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{})

	out, err := svc.LoadDoc([]string{"model-associations"}, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	if len(out[0].Sections) != 0 {
		t.Error("sections included without IncludeSections")
	}
	if out[0].Metadata != nil {
		t.Error("metadata included without IncludeMetadata")
	}
}

func TestLoadDoc_UnknownSlugSuggests(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{})

	out, err := svc.LoadDoc([]string{"model-assocs"}, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	doc := out[0]
	if doc.Status != StatusNotFound {
		t.Fatalf("status = %q, want not_found", doc.Status)
	}
	found := false
	for _, s := range doc.Suggestions {
		if s == "model-associations" {
			found = true
		}
	}
	if !found {
		t.Errorf("suggestions %v missing model-associations", doc.Suggestions)
	}
}

func TestLoadDoc_RetiredSlugRedirects(t *testing.T) {
	svc, s := newService(t, &fixedProvider{})

	p, err := s.GetProject("sequelize")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if err := s.RetireDocument(p.ID, "transactions", "managed-transactions"); err != nil {
		t.Fatalf("RetireDocument: %v", err)
	}

	out, err := svc.LoadDoc([]string{"transactions"}, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	doc := out[0]
	if doc.Status != StatusRetired {
		t.Fatalf("status = %q, want retired", doc.Status)
	}
	if doc.ReplacedBy != "managed-transactions" {
		t.Errorf("replaced_by = %q", doc.ReplacedBy)
	}
}

func TestLoadDoc_SectionReadFailureIsAnError(t *testing.T) {
	svc, s := newService(t, &fixedProvider{})

	// Corrupt a stored section embedding out of band; the load must then
	// fail as a whole rather than return an ok record missing sections.
	db, err := sql.Open("sqlite", s.Path())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if _, err := db.Exec(
		`UPDATE sections SET embedding = X'0102' WHERE document_slug = 'model-associations'`); err != nil {
		t.Fatalf("corrupting section: %v", err)
	}
	db.Close()

	if _, err := svc.LoadDoc([]string{"model-associations"}, LoadOptions{IncludeSections: true}); err == nil {
		t.Fatal("section read failure reported as ok")
	}
}

func TestLoadDoc_BatchMixedOutcomes(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{})

	out, err := svc.LoadDoc([]string{"transactions", "no-such-doc", "model-associations"}, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d records, want 3", len(out))
	}

	want := []string{StatusOK, StatusNotFound, StatusOK}
	for i, w := range want {
		if out[i].Status != w {
			t.Errorf("out[%d].Status = %q, want %q", i, out[i].Status, w)
		}
	}
}

func TestListDoc_GroupsByCategory(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{})

	listing, err := svc.ListDoc(ListOptions{})
	if err != nil {
		t.Fatalf("ListDoc: %v", err)
	}
	if listing.Total != 2 {
		t.Errorf("total = %d, want 2", listing.Total)
	}
	if len(listing.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(listing.Groups))
	}
	// Default order is category-alphabetical.
	if listing.Groups[0].Category != "Advanced" || listing.Groups[1].Category != "Core Concepts" {
		t.Errorf("group order: %s, %s", listing.Groups[0].Category, listing.Groups[1].Category)
	}
	for _, g := range listing.Groups {
		if g.Count != len(g.Documents) {
			t.Errorf("group %s count %d != %d documents", g.Category, g.Count, len(g.Documents))
		}
	}
}

func TestListDoc_CategoryFilter(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{})

	listing, err := svc.ListDoc(ListOptions{Category: "Advanced"})
	if err != nil {
		t.Fatalf("ListDoc: %v", err)
	}
	if listing.Total != 1 || len(listing.Groups) != 1 {
		t.Fatalf("listing = %+v", listing)
	}
	if listing.Groups[0].Documents[0].Slug != "transactions" {
		t.Errorf("filtered doc = %s", listing.Groups[0].Documents[0].Slug)
	}

	empty, err := svc.ListDoc(ListOptions{Category: "Nonexistent"})
	if err != nil {
		t.Fatalf("ListDoc empty: %v", err)
	}
	if empty.Status != StatusNoMatches {
		t.Errorf("empty listing status = %q, want no_matches", empty.Status)
	}
}

func TestAnalyticsCounters(t *testing.T) {
	svc, _ := newService(t, &fixedProvider{vectors: map[string][]float32{
		"transactions": {1, 0, 0, 0},
	}})

	if _, err := svc.SearchDoc(context.Background(), "transactions", search.Filters{}, 5); err != nil {
		t.Fatalf("SearchDoc: %v", err)
	}
	if _, err := svc.LoadDoc([]string{"transactions", "missing-doc"}, LoadOptions{}); err != nil {
		t.Fatalf("LoadDoc: %v", err)
	}
	if _, err := svc.ListDoc(ListOptions{}); err != nil {
		t.Fatalf("ListDoc: %v", err)
	}

	got := svc.Analytics()
	if got.Searches != 1 || got.Loads != 1 || got.Lists != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.Misses != 1 {
		t.Errorf("misses = %d, want 1", got.Misses)
	}
}
