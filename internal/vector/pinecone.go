package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v2/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/embedding"
	"github.com/sapdo/widetable/internal/models"
)

// upsertBatchSize caps each upsert request well under Pinecone's 2MB request
// size limit.
const upsertBatchSize = 50

// PineconeStore indexes columns in a Pinecone serverless index, one namespace
// per deployment. Vector IDs are sanitized to printable ASCII.
type PineconeStore struct {
	client       *pinecone.Client
	conn         *pinecone.IndexConnection
	embedder     embedding.Embedder
	namespace    string
	batchSize    int
	maxKeyLength int
}

// NewPineconeStore connects to the configured index, creating it as a
// serverless index if it does not exist.
func NewPineconeStore(ctx context.Context, cfg config.PineconeConfig, embedder embedding.Embedder, batchSize, maxKeyLength int) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Configurationf("pinecone backend requires an API key")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}

	idx, err := ensureIndex(ctx, client, cfg.IndexName, embedder.Dimensions())
	if err != nil {
		return nil, err
	}

	conn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      idx.Host,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to pinecone index %s: %w", cfg.IndexName, err)
	}

	return &PineconeStore{
		client:       client,
		conn:         conn,
		embedder:     embedder,
		namespace:    cfg.Namespace,
		batchSize:    batchSize,
		maxKeyLength: maxKeyLength,
	}, nil
}

func ensureIndex(ctx context.Context, client *pinecone.Client, name string, dimensions int) (*pinecone.Index, error) {
	idx, err := client.DescribeIndex(ctx, name)
	if err == nil {
		return idx, nil
	}

	dim := int32(dimensions)
	metric := pinecone.Cosine
	idx, err = client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      name,
		Dimension: dim,
		Metric:    metric,
		Cloud:     pinecone.Aws,
		Region:    "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("create pinecone index %s: %w", name, err)
	}
	return idx, nil
}

// IndexColumns embeds and upserts the columns in batches.
func (s *PineconeStore) IndexColumns(ctx context.Context, datasetID string, cols []*models.Column) (int, error) {
	total := 0
	for _, batch := range columnBatches(cols, s.batchSize) {
		texts := make([]string, len(batch))
		for i, col := range batch {
			texts[i] = ColumnText(col)
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, apperrors.WrapIndexing(err, "failed to embed column batch")
		}

		vectors := make([]*pinecone.Vector, len(batch))
		for i, col := range batch {
			meta, err := structpb.NewStruct(map[string]any{
				"dataset_id":  datasetID,
				"column_name": col.Name,
				"column_type": string(col.Type),
				"description": col.Description,
			})
			if err != nil {
				return total, fmt.Errorf("build vector metadata: %w", err)
			}
			values := embeddings[i]
			vectors[i] = &pinecone.Vector{
				Id:       VectorID(datasetID, col.Name, s.maxKeyLength),
				Values:   values,
				Metadata: meta,
			}
		}

		for start := 0; start < len(vectors); start += upsertBatchSize {
			end := start + upsertBatchSize
			if end > len(vectors) {
				end = len(vectors)
			}
			if _, err := s.conn.UpsertVectors(ctx, vectors[start:end]); err != nil {
				return total, apperrors.WrapIndexing(err, "pinecone upsert failed")
			}
		}
		total += len(batch)
	}
	return total, nil
}

// SearchColumns queries the index by embedded query text, optionally
// restricted to one dataset via a metadata filter.
func (s *PineconeStore) SearchColumns(ctx context.Context, query string, limit int, datasetID string) ([]*models.ColumnMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.WrapIndexing(err, "failed to embed query")
	}

	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          q,
		TopK:            uint32(limit),
		IncludeMetadata: true,
	}
	if datasetID != "" {
		filter, err := structpb.NewStruct(map[string]any{
			"dataset_id": map[string]any{"$eq": datasetID},
		})
		if err != nil {
			return nil, fmt.Errorf("build query filter: %w", err)
		}
		req.MetadataFilter = filter
	}
	resp, err := s.conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, apperrors.WrapIndexing(err, "pinecone query failed")
	}

	out := make([]*models.ColumnMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil || m.Vector.Metadata == nil {
			continue
		}
		fields := m.Vector.Metadata.GetFields()
		out = append(out, &models.ColumnMatch{
			DatasetID:   fields["dataset_id"].GetStringValue(),
			ColumnName:  fields["column_name"].GetStringValue(),
			ColumnType:  fields["column_type"].GetStringValue(),
			Description: fields["description"].GetStringValue(),
			Score:       float64(m.Score),
		})
	}
	return out, nil
}

// DeleteDataset removes every vector whose metadata matches the dataset ID.
func (s *PineconeStore) DeleteDataset(ctx context.Context, datasetID string) error {
	filter, err := structpb.NewStruct(map[string]any{
		"dataset_id": map[string]any{"$eq": datasetID},
	})
	if err != nil {
		return fmt.Errorf("build delete filter: %w", err)
	}
	if err := s.conn.DeleteVectorsByFilter(ctx, filter); err != nil {
		return apperrors.WrapIndexing(err, "pinecone delete failed")
	}
	return nil
}

// Close closes the index connection.
func (s *PineconeStore) Close() error {
	return s.conn.Close()
}
