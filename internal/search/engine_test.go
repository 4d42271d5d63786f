package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/embedding"
	"github.com/docfoundry/docfoundry/internal/store"
)

// fixedProvider returns preassigned vectors per text so rankings are exact.
type fixedProvider struct {
	vectors map[string][]float32
	dims    int
	fail    bool
}

func (f *fixedProvider) Embed(_ context.Context, text string) (embedding.Embedding, error) {
	if f.fail {
		return embedding.Embedding{}, embedding.ErrProviderUnavailable
	}
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

func (f *fixedProvider) Dimensions() int {
	if f.dims == 0 {
		return 4
	}
	return f.dims
}

func testConfig() *config.ProjectConfig {
	cfg := config.Default("sequelize")
	cfg.EmbeddingModel = "fake-embed"
	cfg.EmbeddingDimension = 4
	cfg.HybridAlpha = 1.0 // pure vector scoring unless a test overrides
	return cfg
}

// seedStore builds a two-document corpus with hand-picked axis vectors:
// transactions lives on axis 0, associations on axis 1.
func seedStore(t *testing.T) (*store.Store, *store.Project) {
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
		Slug:        "transactions",
		ProjectID:   p.ID,
		Title:       "Transactions",
		Category:    "Advanced",
		Summary:     "# Transactions\n\nTransactions group statements into an atomic unit of work.",
		ContentHash: "t1",
		Embedding:   []float32{0.6, 0, 0, 0.1},
	}, []store.SectionRecord{
		{
			SectionID: "s01-overview",
			Slug:      "transactions",
			Title:     "Overview",
			Content:   "Transactions group statements into an atomic unit of work.",
			Position:  1,
			Embedding: []float32{1, 0, 0, 0},
		},
		{
			SectionID: "s02-managed",
			Slug:      "transactions",
			Title:     "Managed Transactions",
			Content:   "A managed transaction commits automatically when the callback returns.",
			Position:  2,
			Keywords:  []string{"commit", "rollback"},
			Embedding: []float32{0.9, 0, 0.1, 0},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceDocument transactions: %v", err)
	}

	err = s.ReplaceDocument(store.DocumentRecord{
		Slug:        "model-associations",
		ProjectID:   p.ID,
		Title:       "Model Associations",
		Category:    "Core Concepts",
		Summary:     "# Model Associations\n\nSequelize supports the standard associations between models.",
		ContentHash: "a1",
		Embedding:   []float32{0, 0.6, 0, 0.1},
	}, []store.SectionRecord{
		{
			SectionID: "s01-eager-loading",
			Slug:      "model-associations",
			Title:     "Eager Loading",
			Content:   "Eager loading fetches associated models in one query using the include option.",
			Position:  1,
			Keywords:  []string{"findAll", "include"},
			Embedding: []float32{0, 1, 0, 0},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceDocument associations: %v", err)
	}

	return s, p
}

func newEngine(t *testing.T, s *store.Store, p *fixedProvider, cfg *config.ProjectConfig) *Engine {
	t.Helper()
	e, err := New(s, p, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestSearch_RanksByBestSection(t *testing.T) {
	s, _ := seedStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"how do transactions work": {1, 0, 0, 0},
	}}
	e := newEngine(t, s, provider, testConfig())

	resp, err := e.Search(context.Background(), "how do transactions work", Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Degraded {
		t.Error("unexpected degraded response")
	}
	if len(resp.Matches) == 0 {
		t.Fatal("no matches")
	}
	top := resp.Matches[0]
	if top.Slug != "transactions" {
		t.Fatalf("top match = %s, want transactions", top.Slug)
	}
	// The document vector scores lower than its best section; the section
	// score must win.
	if top.Score < 0.99 {
		t.Errorf("top score = %g, want the perfect section score", top.Score)
	}
	if len(top.Sections) == 0 || top.Sections[0].SectionID != "s01-overview" {
		t.Errorf("top sections = %+v", top.Sections)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	s, _ := seedStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"query": {0.7, 0.7, 0, 0},
	}}
	e := newEngine(t, s, provider, testConfig())

	first, err := e.Search(context.Background(), "query", Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Search(context.Background(), "query", Filters{}, 5)
		if err != nil {
			t.Fatalf("Search repeat: %v", err)
		}
		if len(again.Matches) != len(first.Matches) {
			t.Fatalf("match count changed between runs")
		}
		for j := range again.Matches {
			if again.Matches[j].Slug != first.Matches[j].Slug {
				t.Fatalf("ordering changed between runs: %s vs %s",
					again.Matches[j].Slug, first.Matches[j].Slug)
			}
		}
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	s, _ := seedStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"anything at all": {0.7, 0.7, 0, 0},
	}}
	e := newEngine(t, s, provider, testConfig())

	resp, err := e.Search(context.Background(), "anything at all", Filters{Category: "Advanced"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, m := range resp.Matches {
		if m.Category != "Advanced" {
			t.Errorf("match %s has category %s, filter was Advanced", m.Slug, m.Category)
		}
	}
	if len(resp.Matches) != 1 {
		t.Errorf("got %d matches, want 1", len(resp.Matches))
	}
}

func TestSearch_BelowThresholdSuggestsCategories(t *testing.T) {
	s, _ := seedStore(t)
	// Weakly similar to everything, below the 0.35 threshold for all docs.
	provider := &fixedProvider{vectors: map[string][]float32{
		"unrelated topic": {0.1, 0.1, 0, 0.95},
	}}
	e := newEngine(t, s, provider, testConfig())

	resp, err := e.Search(context.Background(), "unrelated topic", Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) != 0 {
		t.Fatalf("got %d matches, want 0 below threshold", len(resp.Matches))
	}
	if len(resp.SuggestedCategories) == 0 {
		t.Fatal("no suggested categories for near-miss results")
	}
	for _, c := range resp.SuggestedCategories {
		if c != "Advanced" && c != "Core Concepts" {
			t.Errorf("unknown suggested category %q", c)
		}
	}
}

func TestSearch_DegradedKeywordFallback(t *testing.T) {
	s, _ := seedStore(t)
	provider := &fixedProvider{fail: true}
	e := newEngine(t, s, provider, testConfig())

	resp, err := e.Search(context.Background(), "eager loading include", Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !resp.Degraded {
		t.Error("provider failure should degrade, not fail")
	}
	if len(resp.Matches) == 0 {
		t.Fatal("degraded search found nothing")
	}
	if resp.Matches[0].Slug != "model-associations" {
		t.Errorf("degraded top match = %s, want model-associations", resp.Matches[0].Slug)
	}
}

func TestSearch_SectionMatchesCapped(t *testing.T) {
	s, _ := seedStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"transactions": {1, 0, 0, 0},
	}}
	cfg := testConfig()
	cfg.MaxSectionMatches = 1
	e := newEngine(t, s, provider, cfg)

	resp, err := e.Search(context.Background(), "transactions", Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) == 0 {
		t.Fatal("no matches")
	}
	if got := len(resp.Matches[0].Sections); got != 1 {
		t.Errorf("got %d section matches, want 1", got)
	}
	if resp.Matches[0].Sections[0].SectionID != "s01-overview" {
		t.Errorf("kept section = %s, want the best-scoring one", resp.Matches[0].Sections[0].SectionID)
	}
}

func TestSearch_HybridBlendLiftsKeywordMatch(t *testing.T) {
	s, _ := seedStore(t)
	// Vector similarity slightly favors transactions, but the query terms
	// appear only in the associations section.
	provider := &fixedProvider{vectors: map[string][]float32{
		"findAll include": {0.6, 0.5, 0, 0},
	}}
	cfg := testConfig()
	cfg.HybridAlpha = 0.5
	e := newEngine(t, s, provider, cfg)

	resp, err := e.Search(context.Background(), "findAll include", Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Matches) == 0 {
		t.Fatal("no matches")
	}
	if resp.Matches[0].Slug != "model-associations" {
		t.Errorf("top match = %s, want model-associations via keyword blend", resp.Matches[0].Slug)
	}
}

func TestSearch_RejectsStoredDimensionMismatch(t *testing.T) {
	// The stored project was indexed at dimension 4; an engine whose
	// active configuration agrees with its own provider at dimension 8
	// must fail the query outright instead of scoring zeroes.
	s, _ := seedStore(t)
	cfg := testConfig()
	cfg.EmbeddingDimension = 8
	provider := &fixedProvider{dims: 8}
	e := newEngine(t, s, provider, cfg)

	_, err := e.Search(context.Background(), "anything", Filters{}, 5)
	var mismatch *store.ConfigMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want ConfigMismatchError", err)
	}
	if mismatch.Field != "dimension" {
		t.Errorf("mismatch.Field = %q, want dimension", mismatch.Field)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, _ := seedStore(t)
	e := newEngine(t, s, &fixedProvider{}, testConfig())

	if _, err := e.Search(context.Background(), "   ", Filters{}, 5); err == nil {
		t.Error("blank query accepted")
	}
}

func TestSortMatches(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	matches := []Match{
		{Slug: "c", Score: 0.5, UpdatedAt: older},
		{Slug: "b", Score: 0.5, UpdatedAt: newer},
		{Slug: "a", Score: 0.5, UpdatedAt: older},
		{Slug: "d", Score: 0.9, UpdatedAt: older},
	}
	sortMatches(matches)

	want := []string{"d", "b", "a", "c"}
	for i, w := range want {
		if matches[i].Slug != w {
			t.Errorf("matches[%d] = %s, want %s", i, matches[i].Slug, w)
		}
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "short text unchanged",
			text: "A short sentence.",
			want: "A short sentence.",
		},
		{
			name: "heading stripped",
			text: "# Title\n\nBody starts here.",
			want: "Body starts here.",
		},
		{
			name: "whitespace collapsed",
			text: "two\nlines   here",
			want: "two lines here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preview(tt.text); got != tt.want {
				t.Errorf("preview(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}

	long := preview(strings.Repeat("word ", 100))
	if len(long) > previewLimit {
		t.Errorf("long preview %d chars, want <= %d", len(long), previewLimit)
	}
	if !strings.HasSuffix(long, "...") {
		t.Error("long preview not marked as clipped")
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors = %g, want 1", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %g, want 0", got)
	}
	if got := cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched dims = %g, want 0", got)
	}
}
