// Package fusion builds the fused image descriptor: a segmentation-derived
// stone-view embedding concatenated with an edge-structure embedding.
package fusion

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/detect"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/embedding"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/vision"
)

// Encoder computes fused descriptors. The indexer and the query path share
// one Encoder so catalog vectors and query vectors come from identical code:
// same segmentation threshold, same views, same concatenation order.
type Encoder struct {
	detector detect.Detector
	embedder embedding.ImageEmbedder
	// segConfidence is the segmentation threshold used for the stone view.
	// Changing it invalidates every stored catalog vector.
	segConfidence float32
}

// NewEncoder creates an encoder over the given detector and embedder.
func NewEncoder(detector detect.Detector, embedder embedding.ImageEmbedder, segConfidence float32) *Encoder {
	return &Encoder{
		detector:      detector,
		embedder:      embedder,
		segConfidence: segConfidence,
	}
}

// Dimensions returns the fused vector length (stone + structure).
func (e *Encoder) Dimensions() int {
	return 2 * e.embedder.Dimensions()
}

// Encode computes the fused descriptor for a BGR image: stone-view embedding
// first, structure-view embedding second. When segmentation produces no
// mask, the original image stands in for the stone view.
func (e *Encoder) Encode(ctx context.Context, img gocv.Mat) ([]float32, error) {
	res, err := e.detector.Detect(ctx, img, e.segConfidence)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	stone := gocv.NewMat()
	if res.HasMask() {
		mask, maskErr := res.FirstMask()
		if maskErr != nil {
			stone.Close()
			return nil, fmt.Errorf("mask assembly failed: %w", maskErr)
		}
		stoneView := vision.StoneView(img, mask)
		mask.Close()
		stone.Close()
		stone = stoneView
	} else {
		img.CopyTo(&stone)
	}
	defer stone.Close()

	structure := vision.StructureView(img)
	defer structure.Close()

	stoneVec, err := e.embedder.EmbedImage(ctx, stone)
	if err != nil {
		return nil, fmt.Errorf("stone embedding failed: %w", err)
	}
	structVec, err := e.embedder.EmbedImage(ctx, structure)
	if err != nil {
		return nil, fmt.Errorf("structure embedding failed: %w", err)
	}

	fused := make([]float32, 0, len(stoneVec)+len(structVec))
	fused = append(fused, stoneVec...)
	fused = append(fused, structVec...)
	return fused, nil
}
