package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/embedding"
	"github.com/sapdo/widetable/internal/models"
)

// QdrantStore indexes columns in a Qdrant collection over gRPC. Column
// metadata travels as point payload; deletion filters on the dataset ID.
type QdrantStore struct {
	client     *qdrant.Client
	embedder   embedding.Embedder
	collection string
	batchSize  int
}

// NewQdrantStore connects to Qdrant and creates the collection if needed.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig, embedder embedding.Embedder, batchSize int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("check qdrant collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(embedder.Dimensions()),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("create qdrant collection %s: %w", cfg.Collection, err)
		}
	}

	return &QdrantStore{
		client:     client,
		embedder:   embedder,
		collection: cfg.Collection,
		batchSize:  batchSize,
	}, nil
}

// IndexColumns embeds and upserts the columns in batches.
func (s *QdrantStore) IndexColumns(ctx context.Context, datasetID string, cols []*models.Column) (int, error) {
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

		points := make([]*qdrant.PointStruct, len(batch))
		for i, col := range batch {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewID(uuid.New().String()),
				Vectors: qdrant.NewVectors(embeddings[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"dataset_id":  datasetID,
					"column_name": col.Name,
					"column_type": string(col.Type),
					"description": col.Description,
				}),
			}
		}

		_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		if err != nil {
			return total, apperrors.WrapIndexing(err, "qdrant upsert failed")
		}
		total += len(batch)
	}
	return total, nil
}

// SearchColumns queries the collection by embedded query text, optionally
// restricted to one dataset via a payload filter.
func (s *QdrantStore) SearchColumns(ctx context.Context, query string, limit int, datasetID string) ([]*models.ColumnMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.WrapIndexing(err, "failed to embed query")
	}

	lim := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if datasetID != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("dataset_id", datasetID),
			},
		}
	}
	hits, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, apperrors.WrapIndexing(err, "qdrant query failed")
	}

	out := make([]*models.ColumnMatch, 0, len(hits))
	for _, hit := range hits {
		payload := hit.Payload
		out = append(out, &models.ColumnMatch{
			DatasetID:   payload["dataset_id"].GetStringValue(),
			ColumnName:  payload["column_name"].GetStringValue(),
			ColumnType:  payload["column_type"].GetStringValue(),
			Description: payload["description"].GetStringValue(),
			Score:       float64(hit.Score),
		})
	}
	return out, nil
}

// DeleteDataset removes every point whose payload matches the dataset ID.
func (s *QdrantStore) DeleteDataset(ctx context.Context, datasetID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("dataset_id", datasetID),
			},
		}),
	})
	if err != nil {
		return apperrors.WrapIndexing(err, "qdrant delete failed")
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
