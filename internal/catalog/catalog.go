// Package catalog persists dataset and column metadata.
package catalog

import (
	"context"

	"github.com/sapdo/widetable/internal/models"
)

// Catalog is the metadata store for datasets and their columns.
type Catalog interface {
	// StoreDataset persists a dataset and all of its columns atomically.
	StoreDataset(ctx context.Context, ds *models.Dataset, cols []*models.Column) error

	// GetDataset returns a dataset by ID.
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)

	// GetDatasetColumns returns one page of a dataset's columns in ordinal
	// order, plus the total column count.
	GetDatasetColumns(ctx context.Context, datasetID string, offset, limit int) (*models.ColumnPage, error)

	// GetColumnGroups returns the group headers for a dataset.
	GetColumnGroups(ctx context.Context, datasetID string) ([]*models.ColumnGroup, error)

	// GetColumnGroup returns one group including its member column names.
	GetColumnGroup(ctx context.Context, groupID int64) (*models.ColumnGroup, error)

	// ListDatasets returns one page of datasets, newest first, optionally
	// filtered by a case-insensitive substring match on name or description.
	ListDatasets(ctx context.Context, offset, limit int, search string) (*models.DatasetPage, error)

	// UpdateColumnDescription sets the description for one column.
	UpdateColumnDescription(ctx context.Context, datasetID, columnName, description string) error

	// DeleteDataset removes a dataset and all of its columns and groups.
	// Deleting an absent dataset is not an error.
	DeleteDataset(ctx context.Context, id string) error

	// CountDatasets returns the total number of datasets.
	CountDatasets(ctx context.Context) (int64, error)

	Close() error
}
