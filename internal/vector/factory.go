package vector

import (
	"context"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/embedding"
)

// New creates a column store for the configured backend: "local" (in-process,
// file-persisted), "pinecone", or "qdrant".
func New(ctx context.Context, cfg config.VectorConfig, embedder embedding.Embedder, batchSize int, indexPath string) (ColumnStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(embedder, batchSize, indexPath)
	case "pinecone":
		return NewPineconeStore(ctx, cfg.Pinecone, embedder, batchSize, cfg.MaxKeyLength)
	case "qdrant":
		return NewQdrantStore(ctx, cfg.Qdrant, embedder, batchSize)
	default:
		return nil, apperrors.Configurationf("unknown vector backend: %s", cfg.Backend)
	}
}
