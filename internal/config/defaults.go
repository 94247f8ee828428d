package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8004
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8004"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "ringsearch/data/catalog.bin"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "ringsearch/data/catalog.db"
	}
	if cfg.Storage.NameIndexPath == "" {
		cfg.Storage.NameIndexPath = "ringsearch/data/names.bleve"
	}
	if cfg.Storage.ImageDir == "" {
		cfg.Storage.ImageDir = "Rings/ring"
	}
	if cfg.Models.YOLOPath == "" {
		cfg.Models.YOLOPath = "ringsearch/models/yolov8m-seg.onnx"
	}
	if cfg.Models.CLIPPath == "" {
		cfg.Models.CLIPPath = "ringsearch/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Models.EmbeddingDimensions == 0 {
		cfg.Models.EmbeddingDimensions = 512
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}
	if cfg.Search.MinSimilarity == 0 {
		cfg.Search.MinSimilarity = 38.0
	}
	if cfg.Search.PersonConfidence == 0 {
		cfg.Search.PersonConfidence = 0.40
	}
	if cfg.Search.GateConfidence == 0 {
		cfg.Search.GateConfidence = 0.15
	}
	if cfg.Search.DetectConfidence == 0 {
		cfg.Search.DetectConfidence = 0.25
	}
	if cfg.Search.NMSIoU == 0 {
		cfg.Search.NMSIoU = 0.45
	}
}
