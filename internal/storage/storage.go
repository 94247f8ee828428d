// Package storage defines the persistence interface for catalog entry metadata.
package storage

import (
	"context"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
)

// MetadataStore persists per-entry bookkeeping used for incremental indexing.
type MetadataStore interface {
	UpsertEntry(ctx context.Context, entry *models.EntryMetadata) error
	GetEntry(ctx context.Context, name string) (*models.EntryMetadata, error)
	DeleteEntry(ctx context.Context, name string) error
	ListEntries(ctx context.Context, offset, limit int) ([]*models.EntryMetadata, error)
	CountEntries(ctx context.Context) (int64, error)

	Close() error
}
