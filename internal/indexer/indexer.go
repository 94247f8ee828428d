// Package indexer builds the visual catalog from image files.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/catalog"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/fusion"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/keyword"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/storage"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/vision"
)

// imageExtensions lists the file types the indexer accepts.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Indexer encodes catalog images and keeps the catalog, name index,
// and entry metadata in sync.
type Indexer struct {
	encoder     *fusion.Encoder
	catalog     *catalog.Catalog
	store       storage.MetadataStore
	nameIndex   keyword.NameIndex
	catalogPath string
	logger      *zap.Logger // optional; when set, logs indexing progress
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress and debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer with the given dependencies.
// catalogPath is where the catalog blob is persisted after changes.
func NewIndexer(
	encoder *fusion.Encoder,
	cat *catalog.Catalog,
	store storage.MetadataStore,
	nameIndex keyword.NameIndex,
	catalogPath string,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		encoder:     encoder,
		catalog:     cat,
		store:       store,
		nameIndex:   nameIndex,
		catalogPath: catalogPath,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexFile encodes a single image file and adds it to the catalog under its
// base name. The catalog blob is persisted on success. Returns false when the
// file was skipped because it is already indexed with the same mtime and size.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (bool, error) {
	indexed, err := idx.indexOne(ctx, path)
	if err != nil {
		return false, err
	}
	if indexed {
		if err := idx.catalog.Save(idx.catalogPath); err != nil {
			return true, fmt.Errorf("failed to save catalog: %w", err)
		}
	}
	return indexed, nil
}

func (idx *Indexer) indexOne(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !imageExtensions[ext] {
		return false, fmt.Errorf("extension %q is not an indexable image type", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}

	name := filepath.Base(absPath)
	if idx.unchanged(ctx, name, absPath, info) {
		// Repopulate the name index in case it was opened empty.
		_ = idx.nameIndex.Index(ctx, name)
		if idx.logger != nil {
			idx.logger.Debug("skipping unchanged image", zap.String("path", absPath))
		}
		return false, nil
	}

	img, err := vision.ReadBGR(absPath)
	if err != nil {
		return false, fmt.Errorf("read image: %w", err)
	}
	defer img.Close()

	vec, err := idx.encoder.Encode(ctx, img)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", name, err)
	}
	if err := idx.catalog.Add(name, vec); err != nil {
		return false, fmt.Errorf("add to catalog: %w", err)
	}
	if err := idx.nameIndex.Index(ctx, name); err != nil {
		return false, fmt.Errorf("failed to index name: %w", err)
	}
	entry := &models.EntryMetadata{
		Name:        name,
		SourcePath:  absPath,
		SourceMtime: info.ModTime().UnixNano(),
		SourceSize:  info.Size(),
	}
	if err := idx.store.UpsertEntry(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to store entry metadata: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("image indexed", zap.String("name", name))
	}
	return true, nil
}

// unchanged reports whether the file is already indexed with the same
// source path, mtime, and size.
func (idx *Indexer) unchanged(ctx context.Context, name, absPath string, info os.FileInfo) bool {
	if _, ok := idx.catalog.Get(name); !ok {
		return false
	}
	entry, err := idx.store.GetEntry(ctx, name)
	if err != nil {
		return false
	}
	if entry.SourcePath != absPath {
		return false
	}
	return entry.SourceMtime == info.ModTime().UnixNano() && entry.SourceSize == info.Size()
}

// IndexDirectory walks dir recursively and indexes every image file found.
// Unchanged files are skipped. Returns the number of files encoded; the
// catalog blob is saved once at the end even if some files failed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		indexed, indexErr := idx.indexOne(ctx, path)
		if indexErr != nil {
			if idx.logger != nil {
				idx.logger.Warn("failed to index image", zap.String("path", path), zap.Error(indexErr))
			}
			return nil
		}
		if indexed {
			n++
			if n%10 == 0 && idx.logger != nil {
				idx.logger.Info("indexing progress", zap.Int("indexed", n))
			}
		}
		return nil
	})

	if saveErr := idx.catalog.Save(idx.catalogPath); saveErr != nil && walkErr == nil {
		walkErr = fmt.Errorf("failed to save catalog: %w", saveErr)
	}
	return n, walkErr
}

// DeleteEntry removes an entry from the catalog, name index, and metadata
// store, then persists the catalog blob.
func (idx *Indexer) DeleteEntry(ctx context.Context, name string) error {
	idx.catalog.Remove(name)
	if err := idx.nameIndex.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete from name index: %w", err)
	}
	if err := idx.store.DeleteEntry(ctx, name); err != nil {
		return fmt.Errorf("failed to delete entry metadata: %w", err)
	}
	if err := idx.catalog.Save(idx.catalogPath); err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("entry deleted", zap.String("name", name))
	}
	return nil
}
