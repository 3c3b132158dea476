// Package embedding turns column description texts into vectors.
package embedding

import (
	"context"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds an embedder from configuration. Provider "local" runs an ONNX
// model in process, "openai" calls the embeddings API, "mock" is deterministic
// and dependency-free.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "local":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Dimensions, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, apperrors.Configurationf("unknown embedding provider: %s", cfg.Provider)
	}
}
