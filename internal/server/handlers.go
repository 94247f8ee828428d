package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/search"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/storage"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/vision"
)

// maxUploadBytes caps query image uploads.
const maxUploadBytes = 20 << 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	img, err := vision.DecodeBGR(data)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "could not decode image")
		return
	}
	defer img.Close()

	response, err := s.engine.Search(r.Context(), img)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrEmptyCatalog):
			s.respondError(w, http.StatusServiceUnavailable, "Catalog is empty. Run indexing script.")
		case errors.Is(err, search.ErrPersonDetected):
			s.respondError(w, http.StatusUnprocessableEntity, "Invalid Image: Person detected. Please photograph only the ring.")
		case errors.Is(err, search.ErrNoMatch):
			s.respondError(w, http.StatusNotFound, "No matching ring detected. Try a closer, centered photo.")
		default:
			s.logger.Error("search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.logger.Debug("search served",
		zap.Float64("best", response.Best),
		zap.Int("results", len(response.Results)))
	s.respondJSON(w, http.StatusOK, response.Results)
}

// handleStoneMask returns the segmented stone of a catalog image as a
// grayscale PNG with the mask in the alpha channel.
func (s *Server) handleStoneMask(w http.ResponseWriter, r *http.Request) {
	img, name, ok := s.loadCatalogImage(w, r)
	if !ok {
		return
	}
	defer img.Close()

	result, err := s.detector.Detect(r.Context(), img, s.config.Search.GateConfidence)
	if err != nil {
		s.logger.Error("mask detection failed", zap.String("image", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !result.HasMask() {
		s.respondError(w, http.StatusNotFound, "No stone detected")
		return
	}
	mask, err := result.FirstMask()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer mask.Close()

	png, err := vision.StoneCutout(img, mask)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondPNG(w, png)
}

// handleRemoveStone returns the grayscale structure of a catalog image with
// the stone region dilated and inpainted away. Without a mask the structure
// image is returned unchanged.
func (s *Server) handleRemoveStone(w http.ResponseWriter, r *http.Request) {
	img, name, ok := s.loadCatalogImage(w, r)
	if !ok {
		return
	}
	defer img.Close()

	structure := vision.GrayTriplicate(img)
	defer structure.Close()

	// Detection runs on the structure image so the mask lines up with what
	// gets inpainted.
	result, err := s.detector.Detect(r.Context(), structure, s.config.Search.GateConfidence)
	if err != nil {
		s.logger.Error("remove-stone detection failed", zap.String("image", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !result.HasMask() {
		png, encErr := vision.EncodePNG(structure)
		if encErr != nil {
			s.respondError(w, http.StatusInternalServerError, encErr.Error())
			return
		}
		s.respondPNG(w, png)
		return
	}
	mask, err := result.FirstMask()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer mask.Close()

	png, err := vision.RemoveStone(structure, mask)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondPNG(w, png)
}

func (s *Server) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	results, err := s.nameIndex.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("catalog name search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	hits := make([]*models.NameHit, len(results))
	for i, res := range results {
		hits[i] = &models.NameHit{Name: res.Name, Score: res.Score}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": query, "hits": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entryCount, err := s.store.CountEntries(r.Context())
	if err != nil {
		s.logger.Error("status: count entries failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	nameCount, _ := s.nameIndex.DocCount()

	resp := map[string]interface{}{
		"catalog_entries":   s.catalog.Size(),
		"metadata_entries":  entryCount,
		"name_index_docs":   nameCount,
		"vector_dimensions": s.catalog.Dimensions(),
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.CatalogPath,
		s.config.Storage.DatabasePath,
		s.config.Storage.NameIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"image_dir":      s.config.Storage.ImageDir,
		"top_k":          s.config.Search.TopK,
		"min_similarity": s.config.Search.MinSimilarity,
		"watch_enabled":  s.config.Watch.Enabled,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// loadCatalogImage resolves the {image} route param inside the image
// directory and reads it. Path traversal outside the directory is rejected.
func (s *Server) loadCatalogImage(w http.ResponseWriter, r *http.Request) (img gocv.Mat, name string, ok bool) {
	name = chi.URLParam(r, "image")
	if name == "" || name != filepath.Base(name) {
		s.respondError(w, http.StatusBadRequest, "invalid image name")
		return img, name, false
	}
	path := filepath.Join(s.config.Storage.ImageDir, name)
	loaded, err := vision.ReadBGR(path)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Image not found")
		return img, name, false
	}
	return loaded, name, true
}

func (s *Server) respondPNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
