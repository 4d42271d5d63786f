package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RawPage is an unmodified crawled page (bronze layer). Rows are immutable
// once written; a re-crawl of the same URL inserts a new row and marks the
// old one superseded.
type RawPage struct {
	ID            int64
	URL           string
	Title         string
	Content       string
	CodeFragments []string
	CapturedAt    time.Time
	SupersededBy  int64 // 0 when current
}

// SaveRawPages stores crawled pages for a project, superseding any earlier
// capture of the same URL. Returns the new row IDs in input order.
func (s *Store) SaveRawPages(projectID int64, pages []RawPage) ([]int64, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(pages))
	for _, page := range pages {
		var fragsJSON sql.NullString
		if len(page.CodeFragments) > 0 {
			data, err := json.Marshal(page.CodeFragments)
			if err != nil {
				return nil, fmt.Errorf("marshaling code fragments for %s: %w", page.URL, err)
			}
			fragsJSON = sql.NullString{String: string(data), Valid: true}
		}

		capturedAt := page.CapturedAt
		if capturedAt.IsZero() {
			capturedAt = time.Now()
		}

		res, err := tx.Exec(
			`INSERT INTO raw_pages (project_id, url, title, content, code_fragments_json, captured_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			projectID, page.URL, nullableString(page.Title), page.Content, fragsJSON, capturedAt.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting raw page %s: %w", page.URL, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading raw page id: %w", err)
		}

		// Supersede earlier captures of the same URL, never overwrite.
		if _, err := tx.Exec(
			`UPDATE raw_pages SET superseded_by = ?
			 WHERE project_id = ? AND url = ? AND id != ? AND superseded_by IS NULL`,
			id, projectID, page.URL, id,
		); err != nil {
			return nil, fmt.Errorf("superseding raw page %s: %w", page.URL, err)
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing raw pages: %w", err)
	}
	return ids, nil
}

// CurrentRawPages returns the non-superseded pages for a project.
func (s *Store) CurrentRawPages(projectID int64) ([]RawPage, error) {
	rows, err := s.db.Query(
		`SELECT id, url, title, content, code_fragments_json, captured_at
		 FROM raw_pages
		 WHERE project_id = ? AND superseded_by IS NULL
		 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying raw pages: %w", err)
	}
	defer rows.Close()

	var pages []RawPage
	for rows.Next() {
		var p RawPage
		var title, fragsJSON sql.NullString
		var capturedAt int64
		if err := rows.Scan(&p.ID, &p.URL, &title, &p.Content, &fragsJSON, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning raw page: %w", err)
		}
		p.Title = title.String
		p.CapturedAt = time.Unix(capturedAt, 0)
		if fragsJSON.Valid {
			if err := json.Unmarshal([]byte(fragsJSON.String), &p.CodeFragments); err != nil {
				return nil, fmt.Errorf("parsing code fragments for %s: %w", p.URL, err)
			}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
