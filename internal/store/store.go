// Package store provides the layered SQLite corpus store: raw crawled pages
// (bronze), deduplicated documents and sections (silver), and embedding
// vectors plus keyword index (gold).
package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Errors returned by store operations.
var (
	ErrNotFound        = errors.New("document not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrSlugRetired     = errors.New("slug retired")
)

// ConfigMismatchError reports a conflict between a project's stored embedding
// configuration and the active one. It is fatal for the project: indexing and
// querying are blocked until the configuration is restored or the project is
// fully re-indexed.
type ConfigMismatchError struct {
	Field  string
	Stored string
	Active string
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("embedding config mismatch on %s: stored %q, active %q (full re-index required)", e.Field, e.Stored, e.Active)
}

// Store wraps the corpus SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the corpus database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite doesn't support concurrent writes, and
	// document writes are short transactions (embedding calls happen
	// outside them), so readers are never blocked for long.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			root_url TEXT,
			embedding_model TEXT NOT NULL,
			embedding_dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		-- Bronze layer: unmodified crawled pages. Re-crawls insert a new
		-- row and mark the old one superseded, preserving provenance.
		CREATE TABLE IF NOT EXISTS raw_pages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			code_fragments_json TEXT,
			captured_at INTEGER NOT NULL,
			superseded_by INTEGER,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_raw_pages_project_url ON raw_pages(project_id, url);

		-- Silver/gold layer: the addressable retrieval unit.
		CREATE TABLE IF NOT EXISTS documents (
			slug TEXT PRIMARY KEY,
			project_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'General',
			summary TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			embedding BLOB NOT NULL,
			source_urls_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_project_category ON documents(project_id, category);

		CREATE TABLE IF NOT EXISTS sections (
			section_id TEXT NOT NULL,
			document_slug TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			position INTEGER NOT NULL,
			keywords_json TEXT,
			embedding BLOB NOT NULL,
			PRIMARY KEY (document_slug, section_id),
			FOREIGN KEY (document_slug) REFERENCES documents(slug)
		);

		-- Keyword layer for hybrid ranking and degraded keyword-only search.
		CREATE VIRTUAL TABLE IF NOT EXISTS sections_fts USING fts5(
			section_id,
			document_slug,
			title,
			content,
			keywords
		);

		-- Retired slugs are never reused; loads report the replacement.
		CREATE TABLE IF NOT EXISTS slug_tombstones (
			slug TEXT PRIMARY KEY,
			project_id INTEGER NOT NULL,
			replaced_by TEXT,
			retired_at INTEGER NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// encodeVector serializes an embedding as little-endian float32 bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes an embedding, validating its dimensionality
// against the owning project's declared dimension.
func decodeVector(buf []byte, wantDim int) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob of %d bytes", len(buf))
	}
	dim := len(buf) / 4
	if wantDim > 0 && dim != wantDim {
		return nil, &ConfigMismatchError{
			Field:  "dimension",
			Stored: fmt.Sprintf("%d", dim),
			Active: fmt.Sprintf("%d", wantDim),
		}
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// nullableString converts a Go string to sql.NullString.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
