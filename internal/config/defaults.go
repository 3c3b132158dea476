package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/widetable/data"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = cfg.Storage.DataDir + "/metadata.sqlite"
	}
	if cfg.Storage.DuckDBPath == "" {
		cfg.Storage.DuckDBPath = cfg.Storage.DataDir + "/widetable.duckdb"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = cfg.Storage.DataDir + "/vector_store/columns.idx"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = cfg.Storage.DataDir + "/keyword_store/columns.bleve"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.SampleRows == 0 {
		// Sample the whole chunk by default so widening sees every value.
		cfg.Ingest.SampleRows = cfg.Ingest.ChunkSize
	}
	if cfg.Ingest.WideColumnThreshold == 0 {
		cfg.Ingest.WideColumnThreshold = 1600
	}
	if cfg.Ingest.MaxColumns == 0 {
		cfg.Ingest.MaxColumns = 50000
	}
	if cfg.Ingest.MaxRows == 0 {
		cfg.Ingest.MaxRows = 5_000_000
	}
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = 1000
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = 10000
	}
	if cfg.Query.SampleLimit == 0 {
		cfg.Query.SampleLimit = 1000
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/widetable/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == "openai" {
			// text-embedding-3-small; 3072 for text-embedding-3-large.
			cfg.Embedding.Dimensions = 1536
			if cfg.Embedding.Model == "text-embedding-3-large" {
				cfg.Embedding.Dimensions = 3072
			}
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "local"
	}
	if cfg.Vector.MaxKeyLength == 0 {
		cfg.Vector.MaxKeyLength = 30
	}
	if cfg.Vector.Pinecone.IndexName == "" {
		cfg.Vector.Pinecone.IndexName = "column-metadata"
	}
	if cfg.Vector.Pinecone.Namespace == "" {
		cfg.Vector.Pinecone.Namespace = "default"
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "column_metadata"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".csv", ".xlsx"}
	}
}
