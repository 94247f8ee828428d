// Package config provides configuration loading and structs for the ring search server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Models  ModelsConfig  `yaml:"models"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings. BaseURL is the externally
// reachable prefix used to build image URLs in search results (set it to the
// machine's LAN address when a mobile client fetches images over Wi-Fi).
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// StorageConfig holds paths for the catalog blob, metadata database,
// name index, and the catalog image folder.
type StorageConfig struct {
	CatalogPath   string `yaml:"catalog_path"`
	DatabasePath  string `yaml:"database_path"`
	NameIndexPath string `yaml:"name_index_path"`
	ImageDir      string `yaml:"image_dir"`
}

// ModelsConfig holds ONNX model settings.
type ModelsConfig struct {
	YOLOPath string `yaml:"yolo_path"`
	CLIPPath string `yaml:"clip_path"`
	// ONNXLibraryPath points at the onnxruntime shared library; empty means
	// the platform default resolution.
	ONNXLibraryPath string `yaml:"onnx_library_path"`
	// EmbeddingDimensions is the per-view CLIP output size (the fused vector
	// is twice this).
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// SearchConfig holds the matching thresholds. PersonConfidence, GateConfidence,
// and MinSimilarity are hand-tuned constants, not derived quantities.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
	// MinSimilarity rejects a query as "no match" when the best of the top-K
	// percentages falls below it.
	MinSimilarity float64 `yaml:"min_similarity"`
	// PersonConfidence rejects a query outright when a person is detected
	// above it.
	PersonConfidence float32 `yaml:"person_confidence"`
	// GateConfidence is the broad detection threshold used for the query-time
	// gating pass (lower than DetectConfidence to find small rings).
	GateConfidence float32 `yaml:"gate_confidence"`
	// DetectConfidence is the segmentation threshold used inside the fused
	// encoder; it must stay identical between indexing and query.
	DetectConfidence float32 `yaml:"detect_confidence"`
	NMSIoU           float32 `yaml:"nms_iou"`
}

// WatchConfig holds image-directory watch settings.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.NameIndexPath = expandPath(cfg.Storage.NameIndexPath, configDir)
	cfg.Storage.ImageDir = expandPath(cfg.Storage.ImageDir, configDir)
	cfg.Models.YOLOPath = expandPath(cfg.Models.YOLOPath, configDir)
	cfg.Models.CLIPPath = expandPath(cfg.Models.CLIPPath, configDir)
	if cfg.Models.ONNXLibraryPath != "" {
		cfg.Models.ONNXLibraryPath = expandPath(cfg.Models.ONNXLibraryPath, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
