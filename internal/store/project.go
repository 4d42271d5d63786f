package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project is a named corpus scope. Once a project has stored documents its
// embedding model and dimension are immutable.
type Project struct {
	ID                 int64
	Name               string
	RootURL            string
	EmbeddingModel     string
	EmbeddingDimension int
	CreatedAt          time.Time
}

// ProjectStats summarizes the stored state of a project.
type ProjectStats struct {
	Documents  int `json:"documents"`
	Sections   int `json:"sections"`
	RawPages   int `json:"raw_pages"`
	Tombstones int `json:"tombstones"`
}

// EnsureProject fetches or creates a project with the given embedding
// configuration. If the project exists with a different model or dimension
// and already holds documents, a ConfigMismatchError is returned before
// anything is written; without documents the configuration is updated in
// place.
func (s *Store) EnsureProject(name, rootURL, model string, dimension int) (*Project, error) {
	existing, err := s.GetProject(name)
	if err != nil && !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.EmbeddingModel == model && existing.EmbeddingDimension == dimension {
			return existing, nil
		}

		indexed, err := s.projectHasDocuments(existing.ID)
		if err != nil {
			return nil, err
		}
		if indexed {
			if existing.EmbeddingModel != model {
				return nil, &ConfigMismatchError{Field: "model", Stored: existing.EmbeddingModel, Active: model}
			}
			return nil, &ConfigMismatchError{
				Field:  "dimension",
				Stored: fmt.Sprintf("%d", existing.EmbeddingDimension),
				Active: fmt.Sprintf("%d", dimension),
			}
		}

		_, err = s.db.Exec(
			`UPDATE projects SET embedding_model = ?, embedding_dimension = ? WHERE id = ?`,
			model, dimension, existing.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating project config: %w", err)
		}
		existing.EmbeddingModel = model
		existing.EmbeddingDimension = dimension
		return existing, nil
	}

	now := time.Now().Unix()
	res, err := s.db.Exec(
		`INSERT INTO projects (name, root_url, embedding_model, embedding_dimension, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		name, nullableString(rootURL), model, dimension, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading project id: %w", err)
	}

	return &Project{
		ID:                 id,
		Name:               name,
		RootURL:            rootURL,
		EmbeddingModel:     model,
		EmbeddingDimension: dimension,
		CreatedAt:          time.Unix(now, 0),
	}, nil
}

// GetProject retrieves a project by name.
func (s *Store) GetProject(name string) (*Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, root_url, embedding_model, embedding_dimension, created_at
		 FROM projects WHERE name = ?`, name)

	var p Project
	var rootURL sql.NullString
	var createdAt int64
	err := row.Scan(&p.ID, &p.Name, &rootURL, &p.EmbeddingModel, &p.EmbeddingDimension, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	p.RootURL = rootURL.String
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// projectHasDocuments reports whether any documents (and so any embeddings)
// are stored for the project.
func (s *Store) projectHasDocuments(projectID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("counting documents: %w", err)
	}
	return n > 0, nil
}

// Stats returns stored counts for a project.
func (s *Store) Stats(name string) (*ProjectStats, error) {
	p, err := s.GetProject(name)
	if err != nil {
		return nil, err
	}

	var st ProjectStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE project_id = ?`, p.ID).Scan(&st.Documents); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sections WHERE document_slug IN (SELECT slug FROM documents WHERE project_id = ?)`,
		p.ID).Scan(&st.Sections); err != nil {
		return nil, fmt.Errorf("counting sections: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM raw_pages WHERE project_id = ?`, p.ID).Scan(&st.RawPages); err != nil {
		return nil, fmt.Errorf("counting raw pages: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM slug_tombstones WHERE project_id = ?`, p.ID).Scan(&st.Tombstones); err != nil {
		return nil, fmt.Errorf("counting tombstones: %w", err)
	}
	return &st, nil
}

// ResetProject destroys all documents, sections, embeddings and tombstones
// for the project. This is the only document-destruction path. Raw pages are
// kept for provenance.
func (s *Store) ResetProject(name string) error {
	p, err := s.GetProject(name)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM sections_fts WHERE document_slug IN (SELECT slug FROM documents WHERE project_id = ?)`, p.ID); err != nil {
		return fmt.Errorf("clearing section index: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM sections WHERE document_slug IN (SELECT slug FROM documents WHERE project_id = ?)`, p.ID); err != nil {
		return fmt.Errorf("clearing sections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE project_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM slug_tombstones WHERE project_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clearing tombstones: %w", err)
	}

	return tx.Commit()
}
