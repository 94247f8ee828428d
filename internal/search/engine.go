// Package search runs visual similarity queries against the catalog.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/catalog"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/config"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/detect"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/fusion"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
	"github.com/Ali-Hamza-007/Ring-Search-System/pkg/utils"
)

// Sentinel errors for the query gates. Handlers map these to user-facing messages.
var (
	ErrEmptyCatalog   = errors.New("catalog is empty")
	ErrPersonDetected = errors.New("person detected in query image")
	ErrNoMatch        = errors.New("no matching item in catalog")
)

// Engine answers query images with the closest catalog entries.
type Engine struct {
	catalog  *catalog.Catalog
	encoder  *fusion.Encoder
	detector detect.Detector
	config   *config.SearchConfig
	baseURL  string
}

// NewEngine creates a search engine. detector is used for the broad gating
// pass and is typically the same instance the encoder segments with.
func NewEngine(
	cat *catalog.Catalog,
	encoder *fusion.Encoder,
	detector detect.Detector,
	cfg *config.SearchConfig,
	baseURL string,
) *Engine {
	return &Engine{
		catalog:  cat,
		encoder:  encoder,
		detector: detector,
		config:   cfg,
		baseURL:  baseURL,
	}
}

// Search gates the query image, encodes it, and returns the top catalog
// matches sorted by similarity. Returns ErrEmptyCatalog, ErrPersonDetected,
// or ErrNoMatch when the corresponding gate rejects the query.
func (e *Engine) Search(ctx context.Context, img gocv.Mat) (*models.SearchResponse, error) {
	startTime := time.Now()

	if e.catalog.Size() == 0 {
		return nil, ErrEmptyCatalog
	}

	// Broad detection pass at a low threshold so small items still register.
	result, err := e.detector.Detect(ctx, img, e.config.GateConfidence)
	if err != nil {
		return nil, fmt.Errorf("gate detection failed: %w", err)
	}
	if _, found := result.Person(e.config.PersonConfidence); found {
		return nil, ErrPersonDetected
	}

	vec, err := e.encoder.Encode(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query image: %w", err)
	}

	hits, err := e.catalog.TopK(vec, e.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("catalog scan failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrNoMatch
	}

	matches := make([]*models.Match, len(hits))
	for i, hit := range hits {
		matches[i] = &models.Match{
			Name:       hit.Name,
			Similarity: utils.RoundPercent(hit.Score),
			ImageURL:   fmt.Sprintf("%s/static_images/%s", e.baseURL, hit.Name),
		}
	}

	best := matches[0].Similarity
	if best < e.config.MinSimilarity {
		return nil, ErrNoMatch
	}

	return &models.SearchResponse{
		Results:   matches,
		Best:      best,
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}
