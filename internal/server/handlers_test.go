package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/catalog"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/config"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/detect"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/embedding"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/fusion"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/keyword"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/search"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/vision"
)

// stubDetector returns a fixed detection list for every call.
type stubDetector struct {
	detections []detect.Detection
}

func (d *stubDetector) Detect(ctx context.Context, img gocv.Mat, confThreshold float32) (*detect.Result, error) {
	return detect.NewResult(d.detections, nil, img.Cols(), img.Rows()), nil
}

func (d *stubDetector) Close() error { return nil }

// memStore is an in-memory MetadataStore used by the status handler.
type memStore struct {
	entries map[string]*models.EntryMetadata
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*models.EntryMetadata)}
}

func (s *memStore) UpsertEntry(ctx context.Context, entry *models.EntryMetadata) error {
	s.entries[entry.Name] = entry
	return nil
}

func (s *memStore) GetEntry(ctx context.Context, name string) (*models.EntryMetadata, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry not found: %s", name)
	}
	return entry, nil
}

func (s *memStore) DeleteEntry(ctx context.Context, name string) error {
	delete(s.entries, name)
	return nil
}

func (s *memStore) ListEntries(ctx context.Context, offset, limit int) ([]*models.EntryMetadata, error) {
	return nil, nil
}

func (s *memStore) CountEntries(ctx context.Context) (int64, error) {
	return int64(len(s.entries)), nil
}

func (s *memStore) Close() error { return nil }

// memNameIndex is an in-memory NameIndex with substring matching.
type memNameIndex struct {
	names []string
}

func (m *memNameIndex) Index(ctx context.Context, name string) error {
	m.names = append(m.names, name)
	return nil
}

func (m *memNameIndex) Search(ctx context.Context, query string, limit int) ([]*keyword.NameResult, error) {
	var out []*keyword.NameResult
	for _, name := range m.names {
		if len(out) >= limit {
			break
		}
		if bytes.Contains([]byte(name), []byte(query)) {
			out = append(out, &keyword.NameResult{Name: name, Score: 1.0})
		}
	}
	return out, nil
}

func (m *memNameIndex) Delete(ctx context.Context, name string) error { return nil }

func (m *memNameIndex) DocCount() (uint64, error) { return uint64(len(m.names)), nil }

func (m *memNameIndex) Close() error { return nil }

type testEnv struct {
	server  *Server
	handler http.Handler
	catalog *catalog.Catalog
	encoder *fusion.Encoder
	store   *memStore
	names   *memNameIndex
	cfg     *config.Config
}

func newTestEnv(t *testing.T, detector detect.Detector) *testEnv {
	t.Helper()
	imageDir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.ImageDir = imageDir
	cfg.Storage.CatalogPath = filepath.Join(t.TempDir(), "catalog.bin")
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "meta.db")
	cfg.Storage.NameIndexPath = filepath.Join(t.TempDir(), "names.bleve")

	embedder := embedding.NewMockEmbedder(16)
	encoder := fusion.NewEncoder(detector, embedder, cfg.Search.DetectConfidence)
	cat, err := catalog.New(encoder.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	engine := search.NewEngine(cat, encoder, detector, &cfg.Search, cfg.Server.BaseURL)
	store := newMemStore()
	names := &memNameIndex{}
	srv := NewServer(engine, cat, store, names, detector, cfg, zap.NewNop())
	return &testEnv{
		server:  srv,
		handler: srv.Router(),
		catalog: cat,
		encoder: encoder,
		store:   store,
		names:   names,
		cfg:     cfg,
	}
}

func writePNG(t *testing.T, path string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if path != "" {
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "query.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body["error"]
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
}

func TestHandleSearch_MissingFile(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestHandleSearch_EmptyCatalog(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	body, contentType := multipartBody(t, "file", writePNG(t, ""))
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Catalog is empty. Run indexing script." {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestHandleSearch_PersonDetected(t *testing.T) {
	detector := &stubDetector{detections: []detect.Detection{
		{ClassID: detect.PersonClassID, ClassName: "person", Confidence: 0.9},
	}}
	env := newTestEnv(t, detector)
	_ = env.catalog.Add("a.png", make([]float32, env.catalog.Dimensions()))

	body, contentType := multipartBody(t, "file", writePNG(t, ""))
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status %d, want 422", rec.Code)
	}
}

func TestHandleSearch_Match(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	pngData := writePNG(t, "")

	// Pre-index the exact query image so it scores ~100.
	img, err := vision.DecodeBGR(pngData)
	if err != nil {
		t.Fatal(err)
	}
	defer img.Close()
	vec, err := env.encoder.Encode(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	_ = env.catalog.Add("target.png", vec)

	body, contentType := multipartBody(t, "file", pngData)
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var results []*models.Match
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("response is not a match list: %v", err)
	}
	if len(results) != 1 || results[0].Name != "target.png" {
		t.Errorf("got %+v, want single target.png match", results)
	}
	wantURL := env.cfg.Server.BaseURL + "/static_images/target.png"
	if results[0].ImageURL != wantURL {
		t.Errorf("image URL %q, want %q", results[0].ImageURL, wantURL)
	}
}

func TestHandleSearch_GarbageUpload(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	_ = env.catalog.Add("a.png", make([]float32, env.catalog.Dimensions()))

	body, contentType := multipartBody(t, "file", []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestHandleStoneMask_ImageNotFound(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_mask/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Image not found" {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestHandleStoneMask_NoDetection(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	writePNG(t, filepath.Join(env.cfg.Storage.ImageDir, "ring.png"))

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_mask/ring.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "No stone detected" {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestHandleRemoveStone_NoMaskReturnsStructure(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	writePNG(t, filepath.Join(env.cfg.Storage.ImageDir, "ring.png"))

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/remove_stone/ring.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type %q, want image/png", got)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("body is not a valid PNG: %v", err)
	}
}

func TestHandleCatalogSearch(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	_ = env.names.Index(context.Background(), "gold_ring.png")
	_ = env.names.Index(context.Background(), "silver_band.png")

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/search?q=gold", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp struct {
		Query string            `json:"query"`
		Hits  []*models.NameHit `json:"hits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].Name != "gold_ring.png" {
		t.Errorf("got %+v, want one gold_ring.png hit", resp.Hits)
	}
}

func TestHandleCatalogSearch_MissingQuery(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	_ = env.catalog.Add("a.png", make([]float32, env.catalog.Dimensions()))
	_ = env.store.UpsertEntry(context.Background(), &models.EntryMetadata{
		Name: "a.png", SourcePath: "/a.png", SourceMtime: time.Now().UnixNano(), SourceSize: 1,
	})

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["catalog_entries"].(float64) != 1 {
		t.Errorf("catalog_entries=%v, want 1", resp["catalog_entries"])
	}
	if resp["metadata_entries"].(float64) != 1 {
		t.Errorf("metadata_entries=%v, want 1", resp["metadata_entries"])
	}
	if resp["vector_dimensions"].(float64) != float64(env.catalog.Dimensions()) {
		t.Errorf("vector_dimensions=%v", resp["vector_dimensions"])
	}
	if _, ok := resp["config"]; !ok {
		t.Error("status response missing config block")
	}
}

func TestStaticImages(t *testing.T) {
	env := newTestEnv(t, &stubDetector{})
	writePNG(t, filepath.Join(env.cfg.Storage.ImageDir, "served.png"))

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static_images/served.png", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
}
