// Package catalog provides the in-memory catalog of fused descriptors and
// its single-blob persistence. The whole catalog is loaded at startup and
// queries are a brute-force cosine scan.
package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
)

// Catalog is the flat collection of (name, vector) records.
type Catalog struct {
	dimensions int
	names      []string
	vectors    [][]float32
	byName     map[string]int
	mu         sync.RWMutex
}

// Match is one scored catalog entry; Score is the raw cosine similarity.
type Match struct {
	Name  string
	Score float64
}

// New creates an empty catalog for vectors of the given dimension.
func New(dimensions int) (*Catalog, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &Catalog{
		dimensions: dimensions,
		byName:     make(map[string]int),
	}, nil
}

// Add inserts or replaces the entry for name.
func (c *Catalog) Add(name string, vector []float32) error {
	if len(vector) != c.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vector), c.dimensions)
	}
	vec := make([]float32, c.dimensions)
	copy(vec, vector)

	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.byName[name]; ok {
		c.vectors[i] = vec
		return nil
	}
	c.byName[name] = len(c.names)
	c.names = append(c.names, name)
	c.vectors = append(c.vectors, vec)
	return nil
}

// Get returns the stored vector for name, if present.
func (c *Catalog) Get(name string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	vec := make([]float32, c.dimensions)
	copy(vec, c.vectors[i])
	return vec, true
}

// Remove deletes the entry for name, if present.
func (c *Catalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byName[name]
	if !ok {
		return
	}
	c.names = append(c.names[:i], c.names[i+1:]...)
	c.vectors = append(c.vectors[:i], c.vectors[i+1:]...)
	delete(c.byName, name)
	for j := i; j < len(c.names); j++ {
		c.byName[c.names[j]] = j
	}
}

// TopK scores query against every entry by cosine similarity and returns the
// best k matches, sorted descending.
func (c *Catalog) TopK(query []float32, k int) ([]Match, error) {
	if len(query) != c.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.dimensions)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k <= 0 || len(c.names) == 0 {
		return nil, nil
	}
	matches := make([]Match, len(c.names))
	for i, vec := range c.vectors {
		matches[i] = Match{Name: c.names[i], Score: CosineSimilarity(query, vec)}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Size returns the number of entries.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Entries returns a snapshot of the catalog entries (names only).
func (c *Catalog) Entries() []models.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CatalogEntry, len(c.names))
	for i, name := range c.names {
		out[i] = models.CatalogEntry{Name: name}
	}
	return out
}

// Dimensions returns the vector dimension.
func (c *Catalog) Dimensions() int {
	return c.dimensions
}

// Save persists the catalog to path as one blob. Directory is created if
// needed. Format: dimension (4), n (4), then per entry: nameLen (4), name
// bytes, vector (dimension*4 bytes), all little-endian.
func (c *Catalog) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create catalog file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(c.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(c.names))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, name := range c.names {
		nameBytes := []byte(name)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(nameBytes))); err != nil {
			return fmt.Errorf("write name len: %w", err)
		}
		if _, err := f.Write(nameBytes); err != nil {
			return fmt.Errorf("write name: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(c.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the catalog from path and replaces the in-memory contents.
// Dimensions must match. If the file does not exist, no error is returned
// and the catalog is unchanged.
func (c *Catalog) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != c.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, catalog expects %d", dim, c.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	names := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	byName := make(map[string]int, n)
	buf := make([]byte, c.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var nameLen uint32
		if err := binary.Read(f, binary.LittleEndian, &nameLen); err != nil {
			return fmt.Errorf("read name len: %w", err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(f, nameBytes); err != nil {
			return fmt.Errorf("read name: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		byName[string(nameBytes)] = len(names)
		names = append(names, string(nameBytes))
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = names
	c.vectors = vectors
	c.byName = byName
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
