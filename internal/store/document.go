package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DocumentRecord is a stored document with its embedding.
type DocumentRecord struct {
	Slug        string
	ProjectID   int64
	Title       string
	Category    string
	Summary     string
	ContentHash string
	Embedding   []float32
	SourceURLs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SectionRecord is one addressable section of a document.
type SectionRecord struct {
	SectionID string
	Slug      string
	Title     string
	Content   string
	Position  int
	Keywords  []string
	Embedding []float32
}

// DocumentInfo is the listing view of a document.
type DocumentInfo struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Sections    int       `json:"sections"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const descriptionLimit = 100

// DocumentHash returns the stored content hash for a slug, or "" when the
// document does not exist.
func (s *Store) DocumentHash(projectID int64, slug string) (string, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT content_hash FROM documents WHERE project_id = ? AND slug = ?`,
		projectID, slug).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading content hash: %w", err)
	}
	return hash, nil
}

// TombstoneFor returns the replacement slug recorded for a retired slug. The
// boolean reports whether the slug is retired at all; the replacement may be
// empty when none was recorded.
func (s *Store) TombstoneFor(projectID int64, slug string) (string, bool, error) {
	var replacedBy sql.NullString
	err := s.db.QueryRow(
		`SELECT replaced_by FROM slug_tombstones WHERE project_id = ? AND slug = ?`,
		projectID, slug).Scan(&replacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading tombstone: %w", err)
	}
	return replacedBy.String, true, nil
}

// ReplaceDocument atomically replaces a document and all of its sections.
// The previous generation stays readable until the transaction commits; on
// any failure the prior state is untouched. Retired slugs are rejected.
func (s *Store) ReplaceDocument(doc DocumentRecord, sections []SectionRecord) error {
	project, err := s.getProjectByID(doc.ProjectID)
	if err != nil {
		return err
	}
	if err := checkDimension(doc.Embedding, project.EmbeddingDimension); err != nil {
		return fmt.Errorf("document %s: %w", doc.Slug, err)
	}
	for _, sec := range sections {
		if err := checkDimension(sec.Embedding, project.EmbeddingDimension); err != nil {
			return fmt.Errorf("section %s: %w", sec.SectionID, err)
		}
	}

	if _, retired, err := s.TombstoneFor(doc.ProjectID, doc.Slug); err != nil {
		return err
	} else if retired {
		return fmt.Errorf("%w: %q", ErrSlugRetired, doc.Slug)
	}

	var sourceURLs sql.NullString
	if len(doc.SourceURLs) > 0 {
		data, err := json.Marshal(doc.SourceURLs)
		if err != nil {
			return fmt.Errorf("marshaling source urls: %w", err)
		}
		sourceURLs = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sections_fts WHERE document_slug = ?`, doc.Slug); err != nil {
		return fmt.Errorf("clearing section index: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sections WHERE document_slug = ?`, doc.Slug); err != nil {
		return fmt.Errorf("clearing sections: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO documents (slug, project_id, title, category, summary, content_hash, embedding, source_urls_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			summary = excluded.summary,
			content_hash = excluded.content_hash,
			embedding = excluded.embedding,
			source_urls_json = excluded.source_urls_json,
			updated_at = excluded.updated_at`,
		doc.Slug, doc.ProjectID, doc.Title, doc.Category, doc.Summary,
		doc.ContentHash, encodeVector(doc.Embedding), sourceURLs, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.Slug, err)
	}

	for _, sec := range sections {
		var keywordsJSON sql.NullString
		if len(sec.Keywords) > 0 {
			data, err := json.Marshal(sec.Keywords)
			if err != nil {
				return fmt.Errorf("marshaling keywords for %s: %w", sec.SectionID, err)
			}
			keywordsJSON = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := tx.Exec(
			`INSERT INTO sections (section_id, document_slug, title, content, position, keywords_json, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sec.SectionID, doc.Slug, sec.Title, sec.Content, sec.Position,
			keywordsJSON, encodeVector(sec.Embedding),
		); err != nil {
			return fmt.Errorf("inserting section %s: %w", sec.SectionID, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO sections_fts (section_id, document_slug, title, content, keywords)
			 VALUES (?, ?, ?, ?, ?)`,
			sec.SectionID, doc.Slug, sec.Title, sec.Content, strings.Join(sec.Keywords, " "),
		); err != nil {
			return fmt.Errorf("indexing section %s: %w", sec.SectionID, err)
		}
	}

	return tx.Commit()
}

// GetDocument retrieves a document by slug.
func (s *Store) GetDocument(projectID int64, slug string) (*DocumentRecord, error) {
	row := s.db.QueryRow(
		`SELECT slug, project_id, title, category, summary, content_hash, embedding, source_urls_json, created_at, updated_at
		 FROM documents WHERE project_id = ? AND slug = ?`, projectID, slug)

	var doc DocumentRecord
	var blob []byte
	var sourceURLs sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&doc.Slug, &doc.ProjectID, &doc.Title, &doc.Category, &doc.Summary,
		&doc.ContentHash, &blob, &sourceURLs, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	doc.Embedding, err = decodeVector(blob, 0)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", slug, err)
	}
	if sourceURLs.Valid {
		if err := json.Unmarshal([]byte(sourceURLs.String), &doc.SourceURLs); err != nil {
			return nil, fmt.Errorf("parsing source urls for %s: %w", slug, err)
		}
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}

// GetSections returns a document's sections in position order.
func (s *Store) GetSections(slug string) ([]SectionRecord, error) {
	rows, err := s.db.Query(
		`SELECT section_id, document_slug, title, content, position, keywords_json, embedding
		 FROM sections WHERE document_slug = ? ORDER BY position`, slug)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()
	return scanSections(rows)
}

func scanSections(rows *sql.Rows) ([]SectionRecord, error) {
	var sections []SectionRecord
	for rows.Next() {
		var sec SectionRecord
		var blob []byte
		var keywordsJSON sql.NullString
		if err := rows.Scan(&sec.SectionID, &sec.Slug, &sec.Title, &sec.Content,
			&sec.Position, &keywordsJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		var err error
		sec.Embedding, err = decodeVector(blob, 0)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", sec.SectionID, err)
		}
		if keywordsJSON.Valid {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &sec.Keywords); err != nil {
				return nil, fmt.Errorf("parsing keywords for %s: %w", sec.SectionID, err)
			}
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// RetireDocument removes a document and tombstones its slug so it is never
// reused. An optional replacement slug is recorded for redirects.
func (s *Store) RetireDocument(projectID int64, slug, replacedBy string) error {
	if _, err := s.GetDocument(projectID, slug); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sections_fts WHERE document_slug = ?`, slug); err != nil {
		return fmt.Errorf("clearing section index: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sections WHERE document_slug = ?`, slug); err != nil {
		return fmt.Errorf("clearing sections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO slug_tombstones (slug, project_id, replaced_by, retired_at) VALUES (?, ?, ?, ?)`,
		slug, projectID, nullableString(replacedBy), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("recording tombstone: %w", err)
	}

	return tx.Commit()
}

// ListDocuments returns the listing view of all documents in a project,
// optionally filtered by category, ordered by category then title.
func (s *Store) ListDocuments(projectID int64, category string) ([]DocumentInfo, error) {
	query := `
		SELECT d.slug, d.title, d.category, d.summary, d.updated_at,
			(SELECT COUNT(*) FROM sections WHERE document_slug = d.slug)
		FROM documents d
		WHERE d.project_id = ?`
	args := []any{projectID}
	if category != "" {
		query += ` AND d.category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY d.category, d.title`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var infos []DocumentInfo
	for rows.Next() {
		var info DocumentInfo
		var summary string
		var updatedAt int64
		if err := rows.Scan(&info.Slug, &info.Title, &info.Category, &summary, &updatedAt, &info.Sections); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		info.Description = describe(summary)
		info.UpdatedAt = time.Unix(updatedAt, 0)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Slugs returns all live slugs in the project.
func (s *Store) Slugs(projectID int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT slug FROM documents WHERE project_id = ? ORDER BY slug`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// Categories returns the distinct categories present in the project.
func (s *Store) Categories(projectID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT category FROM documents WHERE project_id = ? ORDER BY category`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// DocumentVector pairs a document's metadata with its embedding for ranking.
type DocumentVector struct {
	Slug      string
	Title     string
	Category  string
	Summary   string
	UpdatedAt time.Time
	Vector    []float32
}

// SectionVector pairs a section with its embedding for ranking.
type SectionVector struct {
	SectionID string
	Slug      string
	Title     string
	Content   string
	Keywords  []string
	Vector    []float32
}

// DocumentVectors loads every document embedding in the project, validating
// each against the project's declared dimension.
func (s *Store) DocumentVectors(projectID int64) ([]DocumentVector, error) {
	project, err := s.getProjectByID(projectID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT slug, title, category, summary, updated_at, embedding
		 FROM documents WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying document vectors: %w", err)
	}
	defer rows.Close()

	var vecs []DocumentVector
	for rows.Next() {
		var v DocumentVector
		var blob []byte
		var updatedAt int64
		if err := rows.Scan(&v.Slug, &v.Title, &v.Category, &v.Summary, &updatedAt, &blob); err != nil {
			return nil, fmt.Errorf("scanning document vector: %w", err)
		}
		v.Vector, err = decodeVector(blob, project.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", v.Slug, err)
		}
		v.UpdatedAt = time.Unix(updatedAt, 0)
		vecs = append(vecs, v)
	}
	return vecs, rows.Err()
}

// SectionVectors loads every section embedding in the project.
func (s *Store) SectionVectors(projectID int64) ([]SectionVector, error) {
	project, err := s.getProjectByID(projectID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT s.section_id, s.document_slug, s.title, s.content, s.keywords_json, s.embedding
		 FROM sections s JOIN documents d ON d.slug = s.document_slug
		 WHERE d.project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying section vectors: %w", err)
	}
	defer rows.Close()

	var vecs []SectionVector
	for rows.Next() {
		var v SectionVector
		var blob []byte
		var keywordsJSON sql.NullString
		if err := rows.Scan(&v.SectionID, &v.Slug, &v.Title, &v.Content, &keywordsJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning section vector: %w", err)
		}
		var err error
		v.Vector, err = decodeVector(blob, project.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", v.SectionID, err)
		}
		if keywordsJSON.Valid {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &v.Keywords); err != nil {
				return nil, fmt.Errorf("parsing keywords for %s: %w", v.SectionID, err)
			}
		}
		vecs = append(vecs, v)
	}
	return vecs, rows.Err()
}

// KeywordHit is one full-text match with its bm25 rank (lower is better).
type KeywordHit struct {
	SectionID string
	Slug      string
	Title     string
	Content   string
	Rank      float64
}

// KeywordSearch runs an OR query over the section full-text index. Query
// tokens are quoted so punctuation in identifiers cannot break the match
// expression.
func (s *Store) KeywordSearch(projectID int64, query string, limit int) ([]KeywordHit, error) {
	expr := ftsQuery(query)
	if expr == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT sections_fts.section_id, sections_fts.document_slug, sections_fts.title, sections_fts.content,
			bm25(sections_fts) AS rank
		 FROM sections_fts JOIN documents d ON d.slug = sections_fts.document_slug
		 WHERE sections_fts MATCH ? AND d.project_id = ?
		 ORDER BY rank LIMIT ?`, expr, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		if err := rows.Scan(&h.SectionID, &h.Slug, &h.Title, &h.Content, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery builds a quoted OR expression from whitespace-separated tokens.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(fields))
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"`)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, ``)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (s *Store) getProjectByID(id int64) (*Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, root_url, embedding_model, embedding_dimension, created_at
		 FROM projects WHERE id = ?`, id)

	var p Project
	var rootURL sql.NullString
	var createdAt int64
	err := row.Scan(&p.ID, &p.Name, &rootURL, &p.EmbeddingModel, &p.EmbeddingDimension, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	p.RootURL = rootURL.String
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

func checkDimension(vec []float32, want int) error {
	if len(vec) != want {
		return &ConfigMismatchError{
			Field:  "dimension",
			Stored: fmt.Sprintf("%d", want),
			Active: fmt.Sprintf("%d", len(vec)),
		}
	}
	return nil
}

// describe produces a one-line description from a summary: the first prose
// line, clipped to a fixed length at a rune boundary.
func describe(summary string) string {
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "```") {
			continue
		}
		if utf8.RuneCountInString(line) <= descriptionLimit {
			return line
		}
		runes := []rune(line)
		return strings.TrimSpace(string(runes[:descriptionLimit-3])) + "..."
	}
	return ""
}
