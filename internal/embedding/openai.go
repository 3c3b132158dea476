package embedding

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sapdo/widetable/internal/apperrors"
)

// OpenAIEmbedder calls the OpenAI embeddings API. Batches are sent as a single
// request; the API preserves input order in the response.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	cache      *Cache
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(apiKey, model string, dimensions, cacheSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, apperrors.Configurationf("openai embedding provider requires an API key")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		cache:      NewCache(cacheSize),
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	out, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, out[0])
	return out[0], nil
}

// EmbedBatch embeds all texts in one API call, filling cached entries locally.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			embeddings[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return embeddings, nil
	}

	fetched, err := e.request(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, emb := range fetched {
		embeddings[missingIdx[j]] = emb
		e.cache.Set(missing[j], emb)
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, apperrors.WrapIndexing(err, "openai embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.Indexingf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		emb := make([]float32, len(d.Embedding))
		copy(emb, d.Embedding)
		out[d.Index] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
