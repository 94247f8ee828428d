// Package keyword provides Bleve implementation of NameIndex.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// nameDoc is the document shape stored in the index. Words holds the
// tokenized file name so that "gold" matches "gold_ring_01.png".
type nameDoc struct {
	Name  string `json:"name"`
	Words string `json:"words"`
}

// BleveIndex implements NameIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is opened and reused so that incremental sync works
// without re-indexing unchanged entries. If the mapping changes in code,
// remove the index directory to force a full rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so partial
	// product names match exactly as typed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("words", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("name", keywordFieldMapping)
	im.AddDocumentMapping("entry", docMapping)
	im.DefaultType = "entry"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a catalog entry by file name.
func (b *BleveIndex) Index(ctx context.Context, name string) error {
	return b.index.Index(name, &nameDoc{Name: name, Words: tokenizeName(name)})
}

// Search runs a match query over tokenized names and returns up to limit results.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*NameResult, error) {
	q := bleve.NewMatchQuery(strings.ToLower(query))
	q.SetField("words")
	search := bleve.NewSearchRequest(q)
	search.Size = limit
	results, err := b.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*NameResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &NameResult{Name: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes an entry from the index.
func (b *BleveIndex) Delete(ctx context.Context, name string) error {
	return b.index.Delete(name)
}

// DocCount returns the total number of indexed entries.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// tokenizeName lowercases a file name and replaces separators with spaces
// so the standard analyzer sees individual words.
func tokenizeName(name string) string {
	lowered := strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', '/':
			return ' '
		}
		return r
	}, lowered)
}
