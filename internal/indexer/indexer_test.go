package indexer

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"testing"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/embedding"
	"github.com/docfoundry/docfoundry/internal/store"
)

// fakeProvider derives deterministic vectors from the text itself, so the
// same input always embeds identically and tests can count calls.
type fakeProvider struct {
	model string
	dims  int
	calls int
	fail  bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{model: "fake-embed", dims: 4}
}

func (f *fakeProvider) Embed(_ context.Context, text string) (embedding.Embedding, error) {
	f.calls++
	if f.fail {
		return embedding.Embedding{}, embedding.ErrProviderUnavailable
	}
	vec := make([]float32, f.dims)
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000) / 1000
	}
	return embedding.Embedding{Vector: vec}, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Embedding, error) {
	out := make([]embedding.Embedding, 0, len(texts))
	for _, text := range texts {
		emb, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

func (f *fakeProvider) ModelName() string { return f.model }
func (f *fakeProvider) Dimensions() int   { return f.dims }

func testConfig() *config.ProjectConfig {
	cfg := config.Default("sequelize")
	cfg.EmbeddingModel = "fake-embed"
	cfg.EmbeddingDimension = 4
	return cfg
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestIndexer(t *testing.T, s *store.Store, p *fakeProvider) *Indexer {
	t.Helper()
	ix, err := New(s, p, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix
}

const associationsSummary = `# Model Associations

Sequelize supports the standard associations between models.

## Eager Loading

Eager loading fetches associated models in one query using the include option.
`

func associationsDoc() Document {
	return Document{
		Title:      "Model Associations",
		Category:   "Core Concepts",
		Summary:    associationsSummary,
		SourceURLs: []string{"https://sequelize.org/docs/associations"},
	}
}

func TestNew_RejectsProviderMismatch(t *testing.T) {
	s := openStore(t)

	wrong := newFakeProvider()
	wrong.model = "other-model"

	_, err := New(s, wrong, testConfig())
	var mismatch *store.ConfigMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want ConfigMismatchError", err)
	}
	if mismatch.Field != "model" {
		t.Errorf("mismatch.Field = %q, want model", mismatch.Field)
	}

	wrongDim := newFakeProvider()
	wrongDim.dims = 8
	if _, err := New(s, wrongDim, testConfig()); !errors.As(err, &mismatch) {
		t.Errorf("dimension mismatch not rejected: %v", err)
	}
}

func TestIndexDocument_StoresDocumentAndSections(t *testing.T) {
	s := openStore(t)
	p := newFakeProvider()
	ix := newTestIndexer(t, s, p)

	res, err := ix.IndexDocument(context.Background(), associationsDoc(), nil)
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if res.Slug != "model-associations" {
		t.Errorf("res.Slug = %q", res.Slug)
	}
	if res.Skipped {
		t.Error("first index marked skipped")
	}
	if res.Sections != 2 {
		t.Errorf("res.Sections = %d, want 2", res.Sections)
	}

	doc, err := s.GetDocument(ix.Project().ID, res.Slug)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Category != "Core Concepts" {
		t.Errorf("category = %q", doc.Category)
	}
	if len(doc.Embedding) != 4 {
		t.Errorf("document embedding dim = %d", len(doc.Embedding))
	}

	sections, err := s.GetSections(res.Slug)
	if err != nil {
		t.Fatalf("GetSections: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("stored %d sections, want 2", len(sections))
	}
}

func TestIndexDocument_IdempotentReindex(t *testing.T) {
	s := openStore(t)
	p := newFakeProvider()
	ix := newTestIndexer(t, s, p)

	if _, err := ix.IndexDocument(context.Background(), associationsDoc(), nil); err != nil {
		t.Fatalf("first index: %v", err)
	}
	callsAfterFirst := p.calls

	res, err := ix.IndexDocument(context.Background(), associationsDoc(), nil)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if !res.Skipped {
		t.Error("unchanged re-index not skipped")
	}
	if p.calls != callsAfterFirst {
		t.Errorf("re-index made %d extra embed calls", p.calls-callsAfterFirst)
	}
}

func TestIndexDocument_EmbedsEachTextOnce(t *testing.T) {
	s := openStore(t)
	p := newFakeProvider()
	ix := newTestIndexer(t, s, p)

	// A single-section document whose only section carries the full summary
	// text: the summary and the section share one embedding call.
	doc := Document{
		Title:    "Transactions",
		Category: "Advanced",
		Summary:  "Transactions group statements into an atomic unit of work.",
	}
	res, err := ix.IndexDocument(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if res.Sections != 1 {
		t.Fatalf("res.Sections = %d, want 1", res.Sections)
	}
	if res.EmbedCalls != 1 {
		t.Errorf("res.EmbedCalls = %d, want 1 for identical texts", res.EmbedCalls)
	}
}

func TestIndexDocument_ProviderFailureLeavesOldVersion(t *testing.T) {
	s := openStore(t)
	p := newFakeProvider()
	ix := newTestIndexer(t, s, p)

	if _, err := ix.IndexDocument(context.Background(), associationsDoc(), nil); err != nil {
		t.Fatalf("first index: %v", err)
	}
	before, err := s.GetDocument(ix.Project().ID, "model-associations")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}

	p.fail = true
	changed := associationsDoc()
	changed.Summary += "\n\nA new paragraph that changes the content hash.\n"

	_, err = ix.IndexDocument(context.Background(), changed, nil)
	if !errors.Is(err, embedding.ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProviderUnavailable", err)
	}

	after, err := s.GetDocument(ix.Project().ID, "model-associations")
	if err != nil {
		t.Fatalf("GetDocument after failure: %v", err)
	}
	if after.ContentHash != before.ContentHash {
		t.Error("failed index modified the stored document")
	}
	sections, err := s.GetSections("model-associations")
	if err != nil {
		t.Fatalf("GetSections: %v", err)
	}
	if len(sections) != 2 {
		t.Errorf("failed index left %d sections, want 2", len(sections))
	}
}

func TestIndexDocument_SavesRawPagesEvenWhenSkipped(t *testing.T) {
	s := openStore(t)
	p := newFakeProvider()
	ix := newTestIndexer(t, s, p)

	pages := []store.RawPage{{URL: "https://sequelize.org/docs/associations", Content: "raw html"}}
	if _, err := ix.IndexDocument(context.Background(), associationsDoc(), pages); err != nil {
		t.Fatalf("first index: %v", err)
	}

	res, err := ix.IndexDocument(context.Background(), associationsDoc(), pages)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected skip")
	}

	st, err := s.Stats("sequelize")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.RawPages != 2 {
		t.Errorf("raw pages = %d, want 2 (skip still records provenance)", st.RawPages)
	}
}

func TestIndexDocument_RetiredSlugRejected(t *testing.T) {
	s := openStore(t)
	p := newFakeProvider()
	ix := newTestIndexer(t, s, p)

	if _, err := ix.IndexDocument(context.Background(), associationsDoc(), nil); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := ix.RetireDocument("model-associations", "associations-guide"); err != nil {
		t.Fatalf("RetireDocument: %v", err)
	}

	_, err := ix.IndexDocument(context.Background(), associationsDoc(), nil)
	if !errors.Is(err, store.ErrSlugRetired) {
		t.Errorf("got %v, want ErrSlugRetired", err)
	}
}
