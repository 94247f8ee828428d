// Package embedding provides image embedding via the CLIP ONNX image encoder.
package embedding

import (
	"context"

	"gocv.io/x/gocv"
)

// ImageEmbedder produces fixed-length vector embeddings for BGR images.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, img gocv.Mat) ([]float32, error)
	Dimensions() int
	Close() error
}
