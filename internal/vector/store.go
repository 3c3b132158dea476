// Package vector indexes column metadata for semantic search across datasets.
package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/sapdo/widetable/internal/models"
)

// ColumnStore indexes column metadata and answers semantic queries over it.
// Implementations share the same record shape: one vector per column, carrying
// dataset ID, column name, column type, and description as metadata.
type ColumnStore interface {
	// IndexColumns embeds and upserts the columns of a dataset, in batches.
	// Returns the number of columns indexed.
	IndexColumns(ctx context.Context, datasetID string, cols []*models.Column) (int, error)

	// SearchColumns returns up to limit columns most similar to the query
	// text, best first. A non-empty datasetID restricts the search to that
	// dataset before ranking, so other datasets never crowd out its columns.
	SearchColumns(ctx context.Context, query string, limit int, datasetID string) ([]*models.ColumnMatch, error)

	// DeleteDataset removes every vector belonging to the dataset. Deleting
	// an unindexed dataset is a no-op.
	DeleteDataset(ctx context.Context, datasetID string) error

	Close() error
}

// ColumnText renders the text that gets embedded for a column. A column with
// no description falls back to the words of its own name, so "customer_ltv"
// still embeds as "customer ltv" rather than an opaque identifier.
func ColumnText(col *models.Column) string {
	var b strings.Builder
	b.WriteString("Column ")
	b.WriteString(col.Name)
	if col.Description != "" {
		b.WriteString(": ")
		b.WriteString(col.Description)
	} else {
		words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(col.Name))
		if len(words) > 1 {
			b.WriteString(": ")
			b.WriteString(strings.Join(words, " "))
		}
	}
	fmt.Fprintf(&b, " (Type: %s)", col.Type)
	return b.String()
}

// columnBatches yields cols in slices of at most batchSize.
func columnBatches(cols []*models.Column, batchSize int) [][]*models.Column {
	if batchSize <= 0 {
		batchSize = 100
	}
	var out [][]*models.Column
	for start := 0; start < len(cols); start += batchSize {
		end := start + batchSize
		if end > len(cols) {
			end = len(cols)
		}
		out = append(out, cols[start:end])
	}
	return out
}
