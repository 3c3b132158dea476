// Package keyword provides a Bleve index over column names and descriptions.
// It backs exact-word column lookup and serves as the degraded search path
// when the semantic backend is unavailable.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/sapdo/widetable/internal/models"
)

// columnDoc is the indexed shape of one column.
type columnDoc struct {
	DatasetID   string `json:"dataset_id"`
	ColumnName  string `json:"column_name"`
	ColumnType  string `json:"column_type"`
	Description string `json:"description"`
}

// ColumnIndex is a Bleve-backed keyword index over columns.
type ColumnIndex struct {
	index bleve.Index
}

// NewColumnIndex creates or opens a Bleve index at path. An existing index is
// reused; remove the directory to force a rebuild after a mapping change.
func NewColumnIndex(path string) (*ColumnIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query for
	// "revenue" matches exactly that word in names and descriptions.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("column_name", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("dataset_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("column_type", keywordFieldMapping)
	im.AddDocumentMapping("column", docMapping)
	im.DefaultType = "column"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &ColumnIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &ColumnIndex{index: index}, nil
}

// docID keys one column within one dataset.
func docID(datasetID, columnName string) string {
	return datasetID + "::" + columnName
}

// IndexColumns indexes all columns of a dataset in one batch.
func (c *ColumnIndex) IndexColumns(ctx context.Context, datasetID string, cols []*models.Column) error {
	batch := c.index.NewBatch()
	for _, col := range cols {
		doc := columnDoc{
			DatasetID:   datasetID,
			ColumnName:  col.Name,
			ColumnType:  string(col.Type),
			Description: col.Description,
		}
		if err := batch.Index(docID(datasetID, col.Name), doc); err != nil {
			return fmt.Errorf("batch column %s: %w", col.Name, err)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a match query over column names and descriptions and returns up
// to limit results, best first. A non-empty datasetID restricts hits to that
// dataset via a term filter on the keyword-analyzed dataset_id field.
func (c *ColumnIndex) Search(ctx context.Context, query string, limit int, datasetID string) ([]*models.ColumnMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	mq := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(mq)
	if datasetID != "" {
		tq := bleve.NewTermQuery(datasetID)
		tq.SetField("dataset_id")
		req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(mq, tq))
	}
	req.Size = limit
	req.Fields = []string{"dataset_id", "column_name", "column_type", "description"}

	results, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*models.ColumnMatch, 0, len(results.Hits))
	for _, hit := range results.Hits {
		match := &models.ColumnMatch{Score: hit.Score}
		if v, ok := hit.Fields["dataset_id"].(string); ok {
			match.DatasetID = v
		}
		if v, ok := hit.Fields["column_name"].(string); ok {
			match.ColumnName = v
		}
		if v, ok := hit.Fields["column_type"].(string); ok {
			match.ColumnType = v
		}
		if v, ok := hit.Fields["description"].(string); ok {
			match.Description = v
		}
		out = append(out, match)
	}
	return out, nil
}

// DeleteDataset removes every indexed column of the dataset.
func (c *ColumnIndex) DeleteDataset(ctx context.Context, datasetID string) error {
	tq := bleve.NewTermQuery(datasetID)
	tq.SetField("dataset_id")
	req := bleve.NewSearchRequest(tq)
	req.Size = 1000

	batch := c.index.NewBatch()
	for {
		results, err := c.index.Search(req)
		if err != nil {
			return fmt.Errorf("Bleve delete lookup failed: %w", err)
		}
		if len(results.Hits) == 0 {
			break
		}
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := c.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve delete batch failed: %w", err)
		}
		batch = c.index.NewBatch()
	}
	return nil
}

// Count returns the number of indexed columns.
func (c *ColumnIndex) Count() (uint64, error) {
	return c.index.DocCount()
}

// Close closes the index.
func (c *ColumnIndex) Close() error {
	return c.index.Close()
}
