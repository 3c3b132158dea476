// Package config provides configuration loading and structs for the widetable server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sapdo/widetable/internal/apperrors"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Query     QueryConfig     `yaml:"query"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog, the DuckDB database, snapshots,
// and the local indices. Snapshots live under DataDir, one parquet file per
// dataset.
type StorageConfig struct {
	DataDir          string `yaml:"data_dir"`
	CatalogPath      string `yaml:"catalog_path"`
	DuckDBPath       string `yaml:"duckdb_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// IngestConfig holds CSV ingestion limits. All thresholds are configuration,
// not invariants of the design.
type IngestConfig struct {
	// ChunkSize is the number of rows read per chunk during streaming ingestion.
	ChunkSize int `yaml:"chunk_size"`
	// SampleRows is how many rows per chunk are sampled for type inference.
	SampleRows int `yaml:"sample_rows"`
	// WideColumnThreshold is the relational store's column limit; datasets above
	// it take the wide path.
	WideColumnThreshold int   `yaml:"wide_column_threshold"`
	MaxColumns          int   `yaml:"max_columns"`
	MaxRows             int64 `yaml:"max_rows"`
}

// QueryConfig holds query result limits.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// SampleLimit caps table sample responses.
	SampleLimit int `yaml:"sample_limit"`
}

// EmbeddingConfig selects how embeddings are computed, independent of where
// vectors are stored. Provider is one of "local" (ONNX model), "openai"
// (hosted API), or "mock" (deterministic, tests only).
//
// Changing Model or Dimensions after data has been indexed requires a full
// re-index; old and new vectors are not comparable.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
	// APIKey is taken from OPENAI_API_KEY; never read from the config file.
	APIKey string `yaml:"-"`
}

// VectorConfig selects the vector store backend: "local", "pinecone", or "qdrant".
type VectorConfig struct {
	Backend string `yaml:"backend"`
	// MaxKeyLength caps each sanitized part of a vector ID.
	MaxKeyLength int            `yaml:"max_key_length"`
	Pinecone     PineconeConfig `yaml:"pinecone"`
	Qdrant       QdrantConfig   `yaml:"qdrant"`
}

// PineconeConfig holds Pinecone settings. APIKey and Environment come from
// PINECONE_API_KEY and PINECONE_ENVIRONMENT.
type PineconeConfig struct {
	IndexName   string `yaml:"index_name"`
	Namespace   string `yaml:"namespace"`
	APIKey      string `yaml:"-"`
	Environment string `yaml:"-"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// WatchConfig holds drop-directory auto-ingest settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies environment overrides
// and defaults, and expands relative paths. Returns an error if the file cannot
// be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyEnv()
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	cfg.Storage.DuckDBPath = expandPath(cfg.Storage.DuckDBPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Default returns a config with defaults and environment overrides applied,
// for running without a config file.
func Default() *Config {
	var cfg Config
	cfg.ApplyEnv()
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyEnv reads secrets and backend selectors from the environment. The
// recognized variables are VECTOR_STORE_TYPE, OPENAI_API_KEY, PINECONE_API_KEY,
// PINECONE_ENVIRONMENT, QDRANT_HOST, and QDRANT_PORT.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("VECTOR_STORE_TYPE"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("PINECONE_API_KEY"); v != "" {
		c.Vector.Pinecone.APIKey = v
	}
	if v := os.Getenv("PINECONE_ENVIRONMENT"); v != "" {
		c.Vector.Pinecone.Environment = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Vector.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Vector.Qdrant.Port = port
		}
	}
}

// Validate checks backend selections and credentials eagerly so that
// misconfiguration fails at startup rather than on first use.
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "local", "pinecone", "qdrant":
	default:
		return apperrors.Configurationf("unknown vector backend %q (supported: local, pinecone, qdrant)", c.Vector.Backend)
	}
	if c.Vector.Backend == "pinecone" {
		if c.Vector.Pinecone.APIKey == "" {
			return apperrors.Configurationf("PINECONE_API_KEY not set but vector backend is pinecone")
		}
		if c.Vector.Pinecone.Environment == "" {
			return apperrors.Configurationf("PINECONE_ENVIRONMENT not set but vector backend is pinecone")
		}
	}
	switch c.Embedding.Provider {
	case "local", "openai", "mock":
	default:
		return apperrors.Configurationf("unknown embedding provider %q (supported: local, openai, mock)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return apperrors.Configurationf("OPENAI_API_KEY not set but embedding provider is openai")
	}
	if c.Embedding.Dimensions <= 0 {
		return apperrors.Configurationf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Ingest.ChunkSize <= 0 {
		return apperrors.Configurationf("ingest chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
