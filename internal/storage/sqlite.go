// Package storage provides SQLite implementation of the MetadataStore interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
)

// SQLiteStore implements MetadataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		source_path TEXT NOT NULL,
		source_mtime INTEGER NOT NULL,
		source_size INTEGER NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_indexed_at ON entries(indexed_at);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertEntry inserts an entry or replaces the row with the same name.
// A missing ID is filled in; IndexedAt is always set to now.
func (s *SQLiteStore) UpsertEntry(ctx context.Context, entry *models.EntryMetadata) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.IndexedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, name, source_path, source_mtime, source_size, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			source_path = excluded.source_path,
			source_mtime = excluded.source_mtime,
			source_size = excluded.source_size,
			indexed_at = excluded.indexed_at`,
		entry.ID, entry.Name, entry.SourcePath, entry.SourceMtime, entry.SourceSize, entry.IndexedAt,
	)
	return err
}

// GetEntry returns entry metadata by catalog name.
func (s *SQLiteStore) GetEntry(ctx context.Context, name string) (*models.EntryMetadata, error) {
	var entry models.EntryMetadata
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_path, source_mtime, source_size, indexed_at
		 FROM entries WHERE name = ?`, name,
	).Scan(&entry.ID, &entry.Name, &entry.SourcePath, &entry.SourceMtime, &entry.SourceSize, &entry.IndexedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry not found: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteEntry removes an entry by catalog name.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE name = ?`, name)
	return err
}

// ListEntries returns entries with offset and limit, most recently indexed first.
func (s *SQLiteStore) ListEntries(ctx context.Context, offset, limit int) ([]*models.EntryMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_path, source_mtime, source_size, indexed_at
		 FROM entries ORDER BY indexed_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.EntryMetadata
	for rows.Next() {
		var entry models.EntryMetadata
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.SourcePath, &entry.SourceMtime, &entry.SourceSize, &entry.IndexedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CountEntries returns the total number of indexed entries.
func (s *SQLiteStore) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
