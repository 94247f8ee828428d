package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"gocv.io/x/gocv"
)

// MockEmbedder is a deterministic embedder for tests. It derives a
// fixed-dimension vector from a hash of the image contents, so the same
// image always gets the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedImage returns a deterministic embedding based on the image byte hash.
func (e *MockEmbedder) EmbedImage(ctx context.Context, img gocv.Mat) ([]float32, error) {
	h := fnv.New64a()
	data, err := img.DataPtrUint8()
	if err == nil {
		_, _ = h.Write(data)
	}
	seed := h.Sum64()

	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed%100000)*float64(i+1))*0.1 + 0.01)
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
