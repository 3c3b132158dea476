// Package models defines core data structures for datasets, columns, and query results.
package models

import "time"

// ColumnType is the inferred semantic type of a column.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeText      ColumnType = "text"
)

// Dataset represents a processed wide table. Column count and row count are
// denormalized onto the dataset row for fast listing.
type Dataset struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description,omitempty" db:"description"`
	TableName     string    `json:"table_name" db:"table_name"`
	SnapshotPath  string    `json:"-" db:"snapshot_path"`
	ColumnCount   int       `json:"column_count" db:"column_count"`
	RowCount      int64     `json:"row_count" db:"row_count"`
	FileSize      int64     `json:"file_size,omitempty" db:"file_size"`
	StorageFormat string    `json:"storage_format" db:"storage_format"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Column is one field of a dataset. Ordinal is 0-based and stable; it defines
// column order for pagination and sample rows. Name is normalized to be safe as
// both a SQL identifier and a vector-store key.
type Column struct {
	DatasetID   string     `json:"dataset_id" db:"dataset_id"`
	Name        string     `json:"name" db:"name"`
	Ordinal     int        `json:"ordinal" db:"ordinal"`
	Type        ColumnType `json:"type" db:"type"`
	Description string     `json:"description,omitempty" db:"description"`
}

// ColumnGroup is a named slice of a wide dataset's columns. Groups are created
// automatically at ingest time (by type, by name prefix, and sequentially) so
// callers can navigate thousands of columns without paging through all of them.
type ColumnGroup struct {
	ID          int64    `json:"id" db:"id"`
	DatasetID   string   `json:"dataset_id" db:"dataset_id"`
	Name        string   `json:"name" db:"name"`
	Description string   `json:"description,omitempty" db:"description"`
	Columns     []string `json:"columns,omitempty"`
}

// ColumnPage is one page of a dataset's columns plus the total column count.
type ColumnPage struct {
	Columns    []*Column `json:"columns"`
	TotalCount int       `json:"total_count"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
}

// DatasetPage is one page of datasets plus the total dataset count.
type DatasetPage struct {
	Datasets   []*Dataset `json:"datasets"`
	TotalCount int        `json:"total_count"`
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
}

// IngestResult is returned by dataset ingestion.
type IngestResult struct {
	DatasetID   string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TableName   string `json:"table_name"`
	ColumnCount int    `json:"column_count"`
	RowCount    int64  `json:"row_count"`
	FileSize    int64  `json:"file_size"`
	// SemanticIndexed is false when the vector backend failed during ingestion;
	// the dataset is still queryable via SQL (see IndexWarning).
	SemanticIndexed bool   `json:"semantic_indexed"`
	IndexWarning    string `json:"index_warning,omitempty"`
}
