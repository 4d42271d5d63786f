// Package docs is the retrieval facade: searchDoc, loadDoc and listDoc over
// an indexed corpus. Results are tagged records; embedding vectors never
// leave this package.
package docs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/search"
	"github.com/docfoundry/docfoundry/internal/slug"
	"github.com/docfoundry/docfoundry/internal/store"
)

// Result status tags.
const (
	StatusOK        = "ok"
	StatusNoMatches = "no_matches"
	StatusNotFound  = "not_found"
	StatusRetired   = "retired"
)

const maxSlugSuggestions = 3

// Service exposes the three retrieval operations and records usage counters.
type Service struct {
	store  *store.Store
	engine *search.Engine
	cfg    *config.ProjectConfig

	searches atomic.Int64
	loads    atomic.Int64
	lists    atomic.Int64
	misses   atomic.Int64
}

// New returns a retrieval service over the given store and query engine.
func New(st *store.Store, engine *search.Engine, cfg *config.ProjectConfig) *Service {
	return &Service{store: st, engine: engine, cfg: cfg}
}

// SearchResult is a tagged semantic search outcome.
type SearchResult struct {
	Status              string         `json:"status"`
	Query               string         `json:"query"`
	Matches             []search.Match `json:"matches,omitempty"`
	SuggestedCategories []string       `json:"suggested_categories,omitempty"`
	Degraded            bool           `json:"degraded,omitempty"`
}

// SearchDoc runs a semantic query and tags the outcome. A degraded response
// still reports matches; no-matches carries category suggestions instead.
func (s *Service) SearchDoc(ctx context.Context, query string, f search.Filters, limit int) (*SearchResult, error) {
	s.searches.Add(1)

	resp, err := s.engine.Search(ctx, query, f, limit)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Status:              StatusOK,
		Query:               query,
		Matches:             resp.Matches,
		SuggestedCategories: resp.SuggestedCategories,
		Degraded:            resp.Degraded,
	}
	if len(resp.Matches) == 0 {
		result.Status = StatusNoMatches
		s.misses.Add(1)
	}
	return result, nil
}

// LoadOptions controls what a loadDoc result carries.
type LoadOptions struct {
	IncludeSections bool
	IncludeMetadata bool
}

// SectionContent is a loaded section without its embedding.
type SectionContent struct {
	SectionID string   `json:"section_id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Position  int      `json:"position"`
	Keywords  []string `json:"keywords,omitempty"`
}

// Metadata is the optional provenance block of a loaded document.
type Metadata struct {
	ContentHash string    `json:"content_hash"`
	SourceURLs  []string  `json:"source_urls,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadedDoc is one per-slug loadDoc outcome. Status distinguishes a live
// document from an unknown slug and from a retired one.
type LoadedDoc struct {
	Slug        string           `json:"slug"`
	Status      string           `json:"status"`
	Title       string           `json:"title,omitempty"`
	Category    string           `json:"category,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Sections    []SectionContent `json:"sections,omitempty"`
	Metadata    *Metadata        `json:"metadata,omitempty"`
	ReplacedBy  string           `json:"replaced_by,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// LoadDoc loads documents by slug. Each slug resolves independently: one
// unknown slug does not fail the batch, it yields a not_found record with
// nearest-slug suggestions, or a retired record naming the replacement.
func (s *Service) LoadDoc(slugs []string, opts LoadOptions) ([]LoadedDoc, error) {
	if len(slugs) == 0 {
		return nil, fmt.Errorf("no slugs given")
	}
	s.loads.Add(1)

	project, err := s.store.GetProject(s.cfg.Name)
	if err != nil {
		return nil, err
	}

	var known []string
	out := make([]LoadedDoc, 0, len(slugs))
	for _, target := range slugs {
		doc, err := s.store.GetDocument(project.ID, target)
		if err == nil {
			loaded, err := s.loadOne(doc, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, loaded)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		s.misses.Add(1)
		replacedBy, retired, err := s.store.TombstoneFor(project.ID, target)
		if err != nil {
			return nil, err
		}
		if retired {
			out = append(out, LoadedDoc{Slug: target, Status: StatusRetired, ReplacedBy: replacedBy})
			continue
		}

		if known == nil {
			known, err = s.store.Slugs(project.ID)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, LoadedDoc{
			Slug:        target,
			Status:      StatusNotFound,
			Suggestions: slug.Nearest(target, known, maxSlugSuggestions),
		})
	}
	return out, nil
}

func (s *Service) loadOne(doc *store.DocumentRecord, opts LoadOptions) (LoadedDoc, error) {
	loaded := LoadedDoc{
		Slug:     doc.Slug,
		Status:   StatusOK,
		Title:    doc.Title,
		Category: doc.Category,
		Summary:  doc.Summary,
	}
	if opts.IncludeSections {
		sections, err := s.store.GetSections(doc.Slug)
		if err != nil {
			return LoadedDoc{}, fmt.Errorf("loading sections for %s: %w", doc.Slug, err)
		}
		for _, sec := range sections {
			loaded.Sections = append(loaded.Sections, SectionContent{
				SectionID: sec.SectionID,
				Title:     sec.Title,
				Content:   sec.Content,
				Position:  sec.Position,
				Keywords:  sec.Keywords,
			})
		}
	}
	if opts.IncludeMetadata {
		loaded.Metadata = &Metadata{
			ContentHash: doc.ContentHash,
			SourceURLs:  doc.SourceURLs,
			CreatedAt:   doc.CreatedAt,
			UpdatedAt:   doc.UpdatedAt,
		}
	}
	return loaded, nil
}

// Sort orders for ListDoc.
const (
	SortByTitle    = "title"
	SortByCategory = "category"
	SortByRecency  = "recency"
)

// ListOptions controls listDoc filtering and ordering.
type ListOptions struct {
	Category string
	SortBy   string // title, category or recency; category is the default
}

// CategoryGroup is one category's documents in a listing.
type CategoryGroup struct {
	Category  string               `json:"category"`
	Count     int                  `json:"count"`
	Documents []store.DocumentInfo `json:"documents"`
}

// Listing is a full listDoc result.
type Listing struct {
	Status string          `json:"status"`
	Total  int             `json:"total"`
	Groups []CategoryGroup `json:"groups"`
}

// ListDoc returns the corpus table of contents grouped by category.
func (s *Service) ListDoc(opts ListOptions) (*Listing, error) {
	s.lists.Add(1)

	project, err := s.store.GetProject(s.cfg.Name)
	if err != nil {
		return nil, err
	}

	infos, err := s.store.ListDocuments(project.ID, opts.Category)
	if err != nil {
		return nil, err
	}

	switch opts.SortBy {
	case SortByTitle:
		sort.Slice(infos, func(i, j int) bool { return infos[i].Title < infos[j].Title })
	case SortByRecency:
		sort.Slice(infos, func(i, j int) bool {
			if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
				return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
			}
			return infos[i].Slug < infos[j].Slug
		})
	default:
		// ListDocuments already orders by category then title.
	}

	grouped := make(map[string][]store.DocumentInfo)
	var order []string
	for _, info := range infos {
		if _, ok := grouped[info.Category]; !ok {
			order = append(order, info.Category)
		}
		grouped[info.Category] = append(grouped[info.Category], info)
	}

	listing := &Listing{Status: StatusOK, Total: len(infos)}
	if len(infos) == 0 {
		listing.Status = StatusNoMatches
	}
	for _, cat := range order {
		listing.Groups = append(listing.Groups, CategoryGroup{
			Category:  cat,
			Count:     len(grouped[cat]),
			Documents: grouped[cat],
		})
	}
	return listing, nil
}

// Analytics is a snapshot of the service's usage counters.
type Analytics struct {
	Searches int64 `json:"searches"`
	Loads    int64 `json:"loads"`
	Lists    int64 `json:"lists"`
	Misses   int64 `json:"misses"`
}

// Analytics returns the current usage counters.
func (s *Service) Analytics() Analytics {
	return Analytics{
		Searches: s.searches.Load(),
		Loads:    s.loads.Load(),
		Lists:    s.lists.Load(),
		Misses:   s.misses.Load(),
	}
}
