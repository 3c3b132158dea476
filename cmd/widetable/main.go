// Package main is the widetable CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sapdo/widetable/internal/catalog"
	"github.com/sapdo/widetable/internal/columnar"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/embedding"
	"github.com/sapdo/widetable/internal/keyword"
	"github.com/sapdo/widetable/internal/models"
	"github.com/sapdo/widetable/internal/server"
	"github.com/sapdo/widetable/internal/vector"
	"github.com/sapdo/widetable/internal/watcher"
	"github.com/sapdo/widetable/internal/widetable"
	"github.com/sapdo/widetable/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/widetable/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if neither
// exists, built-in defaults with environment overrides are used.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "datasets":
		runDatasets()
	case "columns":
		runColumns()
	case "recommend":
		runRecommend()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("widetable version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
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

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var drop *watcher.DropWatcher
	if len(cfg.Watch.Directories) > 0 {
		drop = watcher.NewDropWatcher(cfg.Watch.Directories, cfg.Watch.Extensions, components.Processor, logger)
		if err := drop.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start drop watcher", zap.Error(err))
		}
		drop.SyncExisting(watchCtx)
	}

	srv := server.NewServer(components.Processor, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if drop != nil {
		drop.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	name := fs.String("name", "", "dataset name (default: file name without extension)")
	description := fs.String("description", "", "dataset description")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: widetable ingest [flags] <file.csv|file.xlsx>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, logger := mustComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	dsName := *name
	if dsName == "" {
		dsName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	ctx := context.Background()
	var res *models.IngestResult
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		res, err = components.Processor.ProcessXLSXFile(ctx, f, dsName, *description)
	} else {
		res, err = components.Processor.ProcessCSVFile(ctx, f, dsName, *description)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Dataset ingested: %s\n", res.DatasetID)
	fmt.Printf("  table:   %s\n", res.TableName)
	fmt.Printf("  columns: %d\n", res.ColumnCount)
	fmt.Printf("  rows:    %d\n", res.RowCount)
	if res.IndexWarning != "" {
		fmt.Printf("  warning: %s\n", res.IndexWarning)
	}
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	limit := fs.Int("limit", 0, "maximum rows to return (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: widetable query [flags] <dataset-id> <sql or question>")
		os.Exit(1)
	}
	datasetID := fs.Arg(0)
	queryText := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))

	var result *models.QueryResult
	if *serverURL != "" {
		res, err := queryViaHTTP(*serverURL, datasetID, queryText, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	} else {
		components, logger := mustComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		res, err := components.Processor.QueryDataset(context.Background(), datasetID, queryText, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	}

	if *outputFormat == "json" {
		printJSON(result)
		return
	}
	if result.SQL != "" && result.SQL != queryText {
		fmt.Printf("# derived SQL: %s\n", result.SQL)
	}
	if result.Message != "" {
		fmt.Printf("# %s\n", result.Message)
	}
	printRows(result.Results)
}

func queryViaHTTP(serverURL, datasetID, queryText string, limit int) (*models.QueryResult, error) {
	body, err := json.Marshal(map[string]any{"query": queryText, "limit": limit})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/datasets/"+datasetID+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runDatasets() {
	fs := flag.NewFlagSet("datasets", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	search := fs.String("search", "", "filter by name or description")
	offset := fs.Int("offset", 0, "pagination offset")
	limit := fs.Int("limit", 100, "page size")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var page *models.DatasetPage
	if *serverURL != "" {
		u := fmt.Sprintf("%s/api/v1/datasets?offset=%d&limit=%d&search=%s", *serverURL, *offset, *limit, *search)
		var p models.DatasetPage
		if err := getJSON(u, &p); err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		page = &p
	} else {
		components, logger := mustComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		p, err := components.Processor.ListDatasets(context.Background(), *offset, *limit, *search)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		page = p
	}

	if *outputFormat == "json" {
		printJSON(page)
		return
	}
	fmt.Printf("%d dataset(s)\n", page.TotalCount)
	for _, ds := range page.Datasets {
		fmt.Printf("  %s  %s  (%d cols, %d rows)", ds.ID, ds.Name, ds.ColumnCount, ds.RowCount)
		if ds.Description != "" {
			fmt.Printf("  %s", utils.Truncate(ds.Description, 60))
		}
		fmt.Println()
	}
}

func runColumns() {
	fs := flag.NewFlagSet("columns", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	offset := fs.Int("offset", 0, "pagination offset")
	limit := fs.Int("limit", 100, "page size")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: widetable columns [flags] <dataset-id>")
		os.Exit(1)
	}
	datasetID := fs.Arg(0)

	var page *models.ColumnPage
	if *serverURL != "" {
		u := fmt.Sprintf("%s/api/v1/datasets/%s/columns?offset=%d&limit=%d", *serverURL, datasetID, *offset, *limit)
		var p models.ColumnPage
		if err := getJSON(u, &p); err != nil {
			fmt.Fprintf(os.Stderr, "Columns failed: %v\n", err)
			os.Exit(1)
		}
		page = &p
	} else {
		components, logger := mustComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		p, err := components.Processor.GetDatasetColumns(context.Background(), datasetID, *offset, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Columns failed: %v\n", err)
			os.Exit(1)
		}
		page = p
	}

	if *outputFormat == "json" {
		printJSON(page)
		return
	}
	fmt.Printf("%d column(s), showing %d from offset %d\n", page.TotalCount, len(page.Columns), page.Offset)
	for _, col := range page.Columns {
		fmt.Printf("  %-40s %-10s", col.Name, col.Type)
		if col.Description != "" {
			fmt.Printf(" %s", utils.Truncate(col.Description, 60))
		}
		fmt.Println()
	}
}

func runRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	limit := fs.Int("limit", 10, "number of recommendations")
	datasetID := fs.String("dataset", "", "restrict recommendations to one dataset")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: widetable recommend [flags] <query text>")
		os.Exit(1)
	}
	queryText := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var matches []*models.ColumnMatch
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]any{"query_text": queryText, "limit": *limit, "dataset_id": *datasetID})
		resp, err := http.Post(*serverURL+"/api/v1/recommendations", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Recommend failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Recommendations []*models.ColumnMatch `json:"recommendations"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		matches = out.Recommendations
	} else {
		components, logger := mustComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		m, err := components.Processor.GetColumnRecommendations(context.Background(), queryText, *limit, *datasetID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
			os.Exit(1)
		}
		matches = m
	}

	if *outputFormat == "json" {
		printJSON(matches)
		return
	}
	if len(matches) == 0 {
		fmt.Println("No matching columns.")
		return
	}
	for _, m := range matches {
		fmt.Printf("  %.3f  %s.%s (%s)", m.Score, m.DatasetID, m.ColumnName, m.ColumnType)
		if m.Description != "" {
			fmt.Printf("  %s", utils.Truncate(m.Description, 60))
		}
		fmt.Println()
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: widetable delete [flags] <dataset-id>")
		os.Exit(1)
	}
	datasetID := fs.Arg(0)

	components, logger := mustComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	if err := components.Processor.DeleteDataset(context.Background(), datasetID); err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Dataset deleted: %s\n", datasetID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status struct {
		Datasets int64 `json:"datasets"`
	}
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, logger := mustComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		count, err := components.Processor.CountDatasets(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status.Datasets = count
	}

	if *outputFormat == "json" {
		printJSON(status)
		return
	}
	fmt.Printf("datasets: %d\n", status.Datasets)
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printRows(rows *models.QueryRows) {
	if rows == nil {
		return
	}
	fmt.Println(strings.Join(rows.Columns, "\t"))
	for _, row := range rows.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	if rows.Truncated {
		fmt.Println("# results truncated")
	}
}

// mustComponents loads config, builds a logger, and initializes the full
// processing stack, exiting on any failure.
func mustComponents(configPath string) (*Components, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, logger
}

// Components holds initialized services.
type Components struct {
	Store     *columnar.Store
	Catalog   catalog.Catalog
	Embedder  embedding.Embedder
	Vectors   vector.ColumnStore
	Keywords  *keyword.ColumnIndex
	Processor *widetable.Processor
}

func (c *Components) Close() {
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := columnar.NewStore(cfg.Storage.DataDir, cfg.Storage.DuckDBPath, cfg.Ingest, cfg.Query, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize columnar store: %w", err)
	}

	cat, err := catalog.NewSQLiteCatalog(cfg.Storage.CatalogPath, cfg.Ingest.WideColumnThreshold)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		// A missing local model should not take the whole service down; SQL
		// queries work without embeddings and the mock keeps indexing alive.
		logger.Warn("failed to create embedder, falling back to mock",
			zap.String("provider", cfg.Embedding.Provider),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	vectors, err := vector.New(ctx, cfg.Vector, embedder, cfg.Embedding.BatchSize, cfg.Storage.VectorIndexPath)
	if err != nil {
		_ = embedder.Close()
		_ = cat.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	keywords, err := keyword.NewColumnIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		_ = vectors.Close()
		_ = embedder.Close()
		_ = cat.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	logger.Info("components initialized",
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("embedding_dimensions", embedder.Dimensions()))

	processor := widetable.NewProcessor(store, cat, vectors, keywords, cfg.Query, logger)
	return &Components{
		Store:     store,
		Catalog:   cat,
		Embedder:  embedder,
		Vectors:   vectors,
		Keywords:  keywords,
		Processor: processor,
	}, nil
}

func printUsage() {
	fmt.Println(`widetable - Wide CSV datasets with SQL and semantic column search

Usage:
  widetable server [flags]                     Start the HTTP server
  widetable ingest [flags] <file>              Ingest a CSV or XLSX file
  widetable query [flags] <id> <sql|question>  Query a dataset
  widetable datasets [flags]                   List datasets
  widetable columns [flags] <id>               List a dataset's columns
  widetable recommend [flags] <query>          Find columns across datasets
  widetable delete [flags] <id>                Delete a dataset
  widetable status [flags]                     Show dataset counts
  widetable version                            Show version
  widetable help                               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/widetable/config.yaml)
  --debug            Enable debug logging

Common Flags:
  --config string    Config file path (direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for
                     direct storage access when the server is not running.
  --output string    Output format: text or json (default: text)

Examples:
  widetable server
  widetable ingest --name "sensor readings" readings.csv
  widetable query 4f6b... "SELECT COUNT(*) FROM dataset_4f6b"
  widetable query 4f6b... how many readings are there
  widetable datasets --search sensors
  widetable recommend customer revenue
  widetable delete 4f6b...
  widetable status --output json`)
}
