// Package keyword defines the catalog name search interface.
package keyword

import "context"

// NameIndex supports keyword lookup of catalog entries by file name.
type NameIndex interface {
	Index(ctx context.Context, name string) error
	Search(ctx context.Context, query string, limit int) ([]*NameResult, error)
	Delete(ctx context.Context, name string) error
	DocCount() (uint64, error)
	Close() error
}

// NameResult is a single name search hit.
type NameResult struct {
	Name  string
	Score float64
}
