// Package main is the ringsearch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/catalog"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/config"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/detect"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/embedding"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/fusion"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/indexer"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/keyword"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/search"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/server"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/storage"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/watcher"
	"github.com/Ali-Hamza-007/Ring-Search-System/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ringsearch/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("ringsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// initONNXRuntime points the runtime at the configured shared library and
// initializes the environment once for the process.
func initONNXRuntime(cfg *config.Config) error {
	if cfg.Models.ONNXLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.Models.ONNXLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}
	return nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (detections, watch events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	if err := initONNXRuntime(cfg); err != nil {
		logger.Fatal("Failed to initialize onnxruntime", zap.Error(err))
	}
	defer func() { _ = ort.DestroyEnvironment() }()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	logger.Info("catalog loaded",
		zap.Int("entries", components.Catalog.Size()),
		zap.Int("dimensions", components.Catalog.Dimensions()),
	)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		idx := components.Indexer
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(
			cfg.Storage.ImageDir,
			func(path string) {
				if _, err := idx.IndexFile(context.Background(), path); err != nil {
					logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := idx.DeleteEntry(context.Background(), filepath.Base(path)); err != nil {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Engine,
		components.Catalog,
		components.Store,
		components.NameIndex,
		components.Detector,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	path := cfg.Storage.ImageDir
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := initONNXRuntime(cfg); err != nil {
		logger.Fatal("Failed to initialize onnxruntime", zap.Error(err))
	}
	defer func() { _ = ort.DestroyEnvironment() }()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Indexer.IndexDirectory(ctx, path)
		if err != nil {
			fmt.Printf("Indexing directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d image(s) from %s (catalog now %d entries)\n", n, path, components.Catalog.Size())
		return
	}
	indexed, err := components.Indexer.IndexFile(ctx, path)
	if err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	if !indexed {
		fmt.Printf("Unchanged, skipped: %s\n", filepath.Base(path))
		return
	}
	fmt.Printf("Image indexed: %s\n", filepath.Base(path))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8004", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ringsearch search [flags] <image-file>")
		os.Exit(1)
	}
	imagePath := fs.Arg(0)

	matches, err := searchViaHTTP(*serverURL, imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(matches); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		for i, m := range matches {
			fmt.Printf("%2d. %-40s %5.1f%%  %s\n", i+1, m.Name, m.Similarity, m.ImageURL)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// searchViaHTTP uploads the image as multipart form data and decodes the
// match list. Gate rejections come back as an error body with a message.
func searchViaHTTP(serverURL, imagePath string) ([]*models.Match, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(serverURL+"/search", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s", e.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	var matches []*models.Match
	if err := json.Unmarshal(body, &matches); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return matches, nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ringsearch delete [flags] <image-name>")
		os.Exit(1)
	}
	name := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	stores, err := openStores(cfg)
	if err != nil {
		logger.Fatal("Failed to open stores", zap.Error(err))
	}
	defer stores.Close()

	// Deletion touches no models, so wire the indexer with nil encoder.
	idx := indexer.NewIndexer(nil, stores.Catalog, stores.Store, stores.NameIndex, cfg.Storage.CatalogPath)
	if err := idx.DeleteEntry(context.Background(), name); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Entry deleted: %s\n", name)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	stores, err := openStores(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open stores: %v\n", err)
		os.Exit(1)
	}
	defer stores.Close()

	entryCount, err := stores.Store.CountEntries(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count entries failed: %v\n", err)
		os.Exit(1)
	}
	nameCount, _ := stores.NameIndex.DocCount()
	diskBytes, _ := storage.DiskUsageBytes(
		cfg.Storage.CatalogPath,
		cfg.Storage.DatabasePath,
		cfg.Storage.NameIndexPath,
	)

	status := map[string]interface{}{
		"catalog_entries":   stores.Catalog.Size(),
		"metadata_entries":  entryCount,
		"name_index_docs":   nameCount,
		"vector_dimensions": stores.Catalog.Dimensions(),
		"disk_usage_bytes":  diskBytes,
		"image_dir":         cfg.Storage.ImageDir,
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("catalog_entries:    %d\n", stores.Catalog.Size())
		fmt.Printf("metadata_entries:   %d\n", entryCount)
		fmt.Printf("name_index_docs:    %d\n", nameCount)
		fmt.Printf("vector_dimensions:  %d\n", stores.Catalog.Dimensions())
		fmt.Printf("disk_usage_bytes:   %d\n", diskBytes)
		fmt.Printf("image_dir:          %s\n", cfg.Storage.ImageDir)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Stores holds the persistence-side services that work without ONNX models.
type Stores struct {
	Store     storage.MetadataStore
	NameIndex keyword.NameIndex
	Catalog   *catalog.Catalog
}

func (s *Stores) Close() {
	if s.Store != nil {
		_ = s.Store.Close()
	}
	if s.NameIndex != nil {
		_ = s.NameIndex.Close()
	}
}

// openStores opens the metadata database and name index and loads the
// catalog blob if present.
func openStores(cfg *config.Config) (*Stores, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	nameIndex, err := keyword.NewBleveIndex(cfg.Storage.NameIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize name index: %w", err)
	}
	cat, err := catalog.New(2 * cfg.Models.EmbeddingDimensions)
	if err != nil {
		_ = store.Close()
		_ = nameIndex.Close()
		return nil, err
	}
	if err := cat.Load(cfg.Storage.CatalogPath); err != nil {
		_ = store.Close()
		_ = nameIndex.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return &Stores{Store: store, NameIndex: nameIndex, Catalog: cat}, nil
}

// Components holds all initialized services, models included.
type Components struct {
	*Stores
	Detector *detect.ONNXDetector
	Embedder *embedding.CLIPEmbedder
	Encoder  *fusion.Encoder
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

func (c *Components) Close() {
	if c.Detector != nil {
		_ = c.Detector.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	c.Stores.Close()
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	stores, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	detector, err := detect.NewONNXDetector(cfg.Models.YOLOPath, cfg.Search.NMSIoU)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to load segmentation model: %w", err)
	}
	embedder, err := embedding.NewCLIPEmbedder(cfg.Models.CLIPPath, cfg.Models.EmbeddingDimensions)
	if err != nil {
		_ = detector.Close()
		stores.Close()
		return nil, fmt.Errorf("failed to load embedding model: %w", err)
	}

	encoder := fusion.NewEncoder(detector, embedder, cfg.Search.DetectConfidence)
	engine := search.NewEngine(stores.Catalog, encoder, detector, &cfg.Search, cfg.Server.BaseURL)

	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	idx := indexer.NewIndexer(encoder, stores.Catalog, stores.Store, stores.NameIndex, cfg.Storage.CatalogPath, idxOpts...)

	return &Components{
		Stores:   stores,
		Detector: detector,
		Embedder: embedder,
		Encoder:  encoder,
		Engine:   engine,
		Indexer:  idx,
	}, nil
}

func printUsage() {
	fmt.Println(`ringsearch - Visual similarity search for jewelry catalogs

Usage:
  ringsearch server [flags]           Start the HTTP server
  ringsearch index [flags] [path]     Index an image or directory (default: configured image_dir)
  ringsearch search [flags] <image>   Search the running server with a query image
  ringsearch delete [flags] <name>    Delete a catalog entry by image name
  ringsearch status [flags]           Show catalog and storage status
  ringsearch version                  Show version
  ringsearch help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/ringsearch/config.yaml)
  --debug            Enable debug logging (detections, watch events, etc.)

Index Flags:
  --config string    Config file path

Search Flags:
  --server string    Server URL (default: http://localhost:8004)
  --output string    Output format: text or json (default: text)

Delete Flags:
  --config string    Config file path

Status Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Examples:
  ringsearch server
  ringsearch index
  ringsearch index ~/Rings/ring/new_batch
  ringsearch search query.jpg
  ringsearch search --output json query.jpg
  ringsearch delete gold_ring_01.png
  ringsearch status`)
}
