// Package models defines core data structures for catalog entries and search results.
package models

import "time"

// FusedDimensions is the length of a fused descriptor: 512 stone-view
// dimensions followed by 512 structure-view dimensions. Catalog vectors and
// query vectors must both have exactly this length or similarity scores are
// not comparable.
const FusedDimensions = 1024

// CatalogEntry is one indexed image: its file name and fused descriptor.
type CatalogEntry struct {
	Name   string    `json:"name"`
	Vector []float32 `json:"-"`
}

// EntryMetadata is the bookkeeping row stored alongside a catalog entry.
// Source path, mtime, and size drive incremental re-indexing: an unchanged
// file keeps its existing vector.
type EntryMetadata struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	SourceMtime int64    `json:"source_mtime"`
	SourceSize int64     `json:"source_size"`
	IndexedAt  time.Time `json:"indexed_at"`
}
