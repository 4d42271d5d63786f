// Package search ranks stored documents and sections against natural
// language queries using vector similarity with optional keyword blending.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/embedding"
	"github.com/docfoundry/docfoundry/internal/store"
)

const (
	// DefaultLimit is the number of document matches returned when the
	// caller does not specify one.
	DefaultLimit = 5

	previewLimit  = 200
	maxSuggestion = 3
)

// Filters narrows the search scope.
type Filters struct {
	Project  string
	Category string
}

// SectionMatch is one supporting section for a document match.
type SectionMatch struct {
	SectionID string  `json:"section_id"`
	Title     string  `json:"title"`
	Preview   string  `json:"preview"`
	Score     float64 `json:"score"`
}

// Match is one ranked document result. The document score is its best
// section score, so a strong fragment surfaces its whole document.
type Match struct {
	Slug      string         `json:"slug"`
	Title     string         `json:"title"`
	Category  string         `json:"category"`
	Preview   string         `json:"preview"`
	Score     float64        `json:"score"`
	UpdatedAt time.Time      `json:"updated_at"`
	Sections  []SectionMatch `json:"sections,omitempty"`
}

// Response is a complete search result. Degraded marks keyword-only results
// produced when the embedding provider was unreachable.
type Response struct {
	Matches             []Match  `json:"matches"`
	Degraded            bool     `json:"degraded,omitempty"`
	SuggestedCategories []string `json:"suggested_categories,omitempty"`
}

// Engine answers semantic queries over a corpus store.
type Engine struct {
	store    *store.Store
	provider embedding.Provider
	cfg      *config.ProjectConfig
}

// New validates the provider against the project configuration and returns
// a query engine.
func New(st *store.Store, provider embedding.Provider, cfg *config.ProjectConfig) (*Engine, error) {
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
	return &Engine{store: st, provider: provider, cfg: cfg}, nil
}

// Search ranks documents against the query. Results below the similarity
// threshold are dropped; when nothing clears it, the categories of the
// closest rejected matches come back as suggestions. If the provider is
// unreachable the engine falls back to keyword-only scoring and flags the
// response as degraded.
func (e *Engine) Search(ctx context.Context, query string, f Filters, limit int) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	projectName := f.Project
	if projectName == "" {
		projectName = e.cfg.Name
	}
	project, err := e.store.GetProject(projectName)
	if err != nil {
		return nil, err
	}
	if project.EmbeddingModel != e.provider.ModelName() {
		return nil, &store.ConfigMismatchError{Field: "model", Stored: project.EmbeddingModel, Active: e.provider.ModelName()}
	}
	if project.EmbeddingDimension != e.provider.Dimensions() {
		return nil, &store.ConfigMismatchError{
			Field:  "dimension",
			Stored: fmt.Sprintf("%d", project.EmbeddingDimension),
			Active: fmt.Sprintf("%d", e.provider.Dimensions()),
		}
	}

	queryEmb, err := e.provider.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, embedding.ErrProviderUnavailable) {
			return e.keywordOnly(project.ID, query, f, limit)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	docs, err := e.store.DocumentVectors(project.ID)
	if err != nil {
		return nil, err
	}
	sections, err := e.store.SectionVectors(project.ID)
	if err != nil {
		return nil, err
	}

	bySlug := make(map[string]store.DocumentVector, len(docs))
	for _, d := range docs {
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		bySlug[d.Slug] = d
	}

	queryTokens := tokenize(query)

	candidates := make(map[string]*Match)
	for _, d := range bySlug {
		candidates[d.Slug] = &Match{
			Slug:      d.Slug,
			Title:     d.Title,
			Category:  d.Category,
			Preview:   preview(d.Summary),
			Score:     e.blend(cosine(queryEmb.Vector, d.Vector), keywordScore(queryTokens, d.Title+" "+d.Summary)),
			UpdatedAt: d.UpdatedAt,
		}
	}

	for _, sec := range sections {
		m, ok := candidates[sec.Slug]
		if !ok {
			continue
		}
		kw := keywordScore(queryTokens, sec.Title+" "+sec.Content+" "+strings.Join(sec.Keywords, " "))
		score := e.blend(cosine(queryEmb.Vector, sec.Vector), kw)
		m.Sections = append(m.Sections, SectionMatch{
			SectionID: sec.SectionID,
			Title:     sec.Title,
			Preview:   preview(sec.Content),
			Score:     score,
		})
		if score > m.Score {
			m.Score = score
		}
	}

	all := make([]Match, 0, len(candidates))
	for _, m := range candidates {
		sort.Slice(m.Sections, func(i, j int) bool {
			if m.Sections[i].Score != m.Sections[j].Score {
				return m.Sections[i].Score > m.Sections[j].Score
			}
			return m.Sections[i].SectionID < m.Sections[j].SectionID
		})
		if len(m.Sections) > e.cfg.MaxSectionMatches {
			m.Sections = m.Sections[:e.cfg.MaxSectionMatches]
		}
		all = append(all, *m)
	}
	sortMatches(all)

	var accepted []Match
	for _, m := range all {
		if m.Score >= e.cfg.SimilarityThreshold {
			accepted = append(accepted, m)
		}
	}

	resp := &Response{}
	if len(accepted) == 0 {
		resp.SuggestedCategories = suggestCategories(all)
		return resp, nil
	}
	if len(accepted) > limit {
		accepted = accepted[:limit]
	}
	resp.Matches = accepted
	return resp, nil
}

// keywordOnly answers a query from the full-text index alone. Scores are
// rank positions, not similarities, so no threshold applies.
func (e *Engine) keywordOnly(projectID int64, query string, f Filters, limit int) (*Response, error) {
	hits, err := e.store.KeywordSearch(projectID, query, limit*10)
	if err != nil {
		return nil, err
	}

	infos, err := e.store.ListDocuments(projectID, f.Category)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]store.DocumentInfo, len(infos))
	for _, info := range infos {
		bySlug[info.Slug] = info
	}

	candidates := make(map[string]*Match)
	order := make([]string, 0)
	for i, h := range hits {
		info, ok := bySlug[h.Slug]
		if !ok {
			continue
		}
		score := 1.0 / float64(i+1)
		m, ok := candidates[h.Slug]
		if !ok {
			m = &Match{
				Slug:      h.Slug,
				Title:     info.Title,
				Category:  info.Category,
				Preview:   info.Description,
				Score:     score,
				UpdatedAt: info.UpdatedAt,
			}
			candidates[h.Slug] = m
			order = append(order, h.Slug)
		}
		if len(m.Sections) < e.cfg.MaxSectionMatches {
			m.Sections = append(m.Sections, SectionMatch{
				SectionID: h.SectionID,
				Title:     h.Title,
				Preview:   preview(h.Content),
				Score:     score,
			})
		}
	}

	matches := make([]Match, 0, len(order))
	for _, slug := range order {
		matches = append(matches, *candidates[slug])
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return &Response{Matches: matches, Degraded: true}, nil
}

// blend combines vector and keyword scores per the configured alpha.
func (e *Engine) blend(vec, kw float64) float64 {
	alpha := e.cfg.HybridAlpha
	return alpha*vec + (1-alpha)*kw
}

// sortMatches orders by score desc, then recency desc, then slug asc, so
// identical corpora always rank identically.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].Slug < matches[j].Slug
	})
}

// suggestCategories collects the categories of the closest rejected matches.
func suggestCategories(rejected []Match) []string {
	var cats []string
	seen := make(map[string]bool)
	for _, m := range rejected {
		if m.Score <= 0 || seen[m.Category] {
			continue
		}
		seen[m.Category] = true
		cats = append(cats, m.Category)
		if len(cats) == maxSuggestion {
			break
		}
	}
	return cats
}

// cosine computes cosine similarity between two vectors, 0 for mismatched
// or zero-magnitude inputs.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordScore is the fraction of query tokens present in the text.
func keywordScore(queryTokens []string, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, tok := range queryTokens {
		if strings.Contains(lower, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// tokenize lowercases and splits a query into alphanumeric tokens.
func tokenize(s string) []string {
	var tokens []string
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			continue
		}
		if sb.Len() > 0 {
			tokens = append(tokens, sb.String())
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		tokens = append(tokens, sb.String())
	}
	return tokens
}

// preview clips text to a fixed length at a word boundary, skipping leading
// markdown furniture.
func preview(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasPrefix(text, "#") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = strings.TrimSpace(text[i+1:])
		} else {
			text = strings.TrimLeft(text, "# ")
			break
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:previewLimit-3])
	if i := strings.LastIndexByte(cut, ' '); i > previewLimit/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
