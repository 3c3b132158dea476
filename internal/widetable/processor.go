// Package widetable orchestrates ingestion, metadata, semantic indexing, and
// query routing for wide tabular datasets.
package widetable

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/catalog"
	"github.com/sapdo/widetable/internal/columnar"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/keyword"
	"github.com/sapdo/widetable/internal/models"
	"github.com/sapdo/widetable/internal/vector"
)

// Processor wires the columnar store, metadata catalog, semantic index, and
// keyword index into one pipeline. Ingestion is transactional for snapshot and
// catalog; index writes are best effort and never fail the ingest.
type Processor struct {
	store    *columnar.Store
	catalog  catalog.Catalog
	vectors  vector.ColumnStore
	keywords *keyword.ColumnIndex
	query    config.QueryConfig
	logger   *zap.Logger
}

// NewProcessor assembles a processor from its components. keywords may be nil
// when no keyword index is configured.
func NewProcessor(store *columnar.Store, cat catalog.Catalog, vectors vector.ColumnStore, keywords *keyword.ColumnIndex, query config.QueryConfig, logger *zap.Logger) *Processor {
	return &Processor{
		store:    store,
		catalog:  cat,
		vectors:  vectors,
		keywords: keywords,
		query:    query,
		logger:   logger,
	}
}

// ProcessCSVFile ingests a CSV stream as a new dataset: snapshot first, then
// catalog metadata, then semantic and keyword indexing. An index failure is
// reported as a warning on the result; the dataset remains fully queryable
// via SQL.
func (p *Processor) ProcessCSVFile(ctx context.Context, r io.Reader, name, description string) (*models.IngestResult, error) {
	res, err := p.store.ProcessCSVFile(ctx, r, name)
	if err != nil {
		return nil, err
	}
	return p.register(ctx, res, name, description)
}

// ProcessXLSXFile ingests the first sheet of an XLSX workbook.
func (p *Processor) ProcessXLSXFile(ctx context.Context, r io.Reader, name, description string) (*models.IngestResult, error) {
	res, err := p.store.ProcessXLSXFile(ctx, r, name)
	if err != nil {
		return nil, err
	}
	return p.register(ctx, res, name, description)
}

// IngestFile ingests a file from disk, naming the dataset after the file. The
// format is chosen by extension; anything that is not .xlsx is read as CSV.
func (p *Processor) IngestFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.WrapIngestion(err, "open "+path)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		_, err = p.ProcessXLSXFile(ctx, f, name, "")
	} else {
		_, err = p.ProcessCSVFile(ctx, f, name, "")
	}
	return err
}

func (p *Processor) register(ctx context.Context, res *columnar.Result, name, description string) (*models.IngestResult, error) {
	ds := &models.Dataset{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		TableName:    res.TableName,
		SnapshotPath: res.SnapshotPath,
		RowCount:     res.RowCount,
		FileSize:     res.FileSize,
	}
	if err := p.catalog.StoreDataset(ctx, ds, res.Columns); err != nil {
		// Without catalog metadata the snapshot is unreachable; remove it.
		if dropErr := p.store.DropSnapshot(ctx, res.TableName, res.SnapshotPath); dropErr != nil {
			p.logger.Warn("failed to clean up snapshot after catalog error",
				zap.String("table", res.TableName), zap.Error(dropErr))
		}
		return nil, apperrors.WrapIngestion(err, "failed to store dataset metadata")
	}

	out := &models.IngestResult{
		DatasetID:       ds.ID,
		Name:            ds.Name,
		Description:     ds.Description,
		TableName:       ds.TableName,
		ColumnCount:     ds.ColumnCount,
		RowCount:        ds.RowCount,
		FileSize:        ds.FileSize,
		SemanticIndexed: true,
	}

	if n, err := p.vectors.IndexColumns(ctx, ds.ID, res.Columns); err != nil {
		p.logger.Warn("semantic indexing failed, dataset remains SQL-queryable",
			zap.String("dataset", ds.ID), zap.Int("indexed", n), zap.Error(err))
		out.SemanticIndexed = false
		out.IndexWarning = fmt.Sprintf("semantic indexing failed: %v", err)
	}
	if p.keywords != nil {
		if err := p.keywords.IndexColumns(ctx, ds.ID, res.Columns); err != nil {
			p.logger.Warn("keyword indexing failed",
				zap.String("dataset", ds.ID), zap.Error(err))
			if out.IndexWarning == "" {
				out.IndexWarning = fmt.Sprintf("keyword indexing failed: %v", err)
			}
		}
	}

	p.logger.Info("dataset ingested",
		zap.String("dataset", ds.ID),
		zap.String("table", ds.TableName),
		zap.Int("columns", ds.ColumnCount),
		zap.Int64("rows", ds.RowCount),
		zap.Bool("semantic_indexed", out.SemanticIndexed),
	)
	return out, nil
}

// QueryDataset answers SQL directly and routes natural language through the
// semantic index. A natural-language query with no relevant columns falls back
// to a data sample instead of failing.
func (p *Processor) QueryDataset(ctx context.Context, datasetID, queryText string, limit int) (*models.QueryResult, error) {
	ds, err := p.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = p.query.DefaultLimit
	}

	if isSQL(queryText) {
		rows, err := p.store.QueryTable(ctx, ds.TableName, queryText, limit)
		if err != nil {
			return nil, err
		}
		return &models.QueryResult{
			Type:    models.QueryTypeSQL,
			Query:   queryText,
			SQL:     queryText,
			Results: rows,
		}, nil
	}

	relevant := p.searchColumns(ctx, queryText, 5, datasetID)
	if len(relevant) == 0 {
		sample, err := p.store.GetTableSample(ctx, ds.TableName, 5)
		if err != nil {
			return nil, err
		}
		return &models.QueryResult{
			Type:    models.QueryTypeSample,
			Query:   queryText,
			Message: "Could not determine relevant columns for your query. Here's a sample of the data:",
			Results: sample,
		}, nil
	}

	sqlText := deriveSQL(queryText, ds.TableName, relevant[0].ColumnName, limit)
	rows, err := p.store.QueryTable(ctx, ds.TableName, sqlText, limit)
	if err != nil {
		return nil, err
	}
	return &models.QueryResult{
		Type:            models.QueryTypeNatural,
		Query:           queryText,
		SQL:             sqlText,
		RelevantColumns: relevant,
		Results:         rows,
	}, nil
}

// sqlKeywords are the statement-leading keywords that mark query text as SQL.
// Write statements are included on purpose so that they reach the read-only
// validator and get rejected, instead of being mistaken for natural language.
var sqlKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "INSERT": true, "UPDATE": true,
	"DELETE": true, "DROP": true, "CREATE": true, "ALTER": true,
	"TRUNCATE": true, "COPY": true, "ATTACH": true, "DETACH": true,
	"PRAGMA": true, "VACUUM": true, "MERGE": true, "REPLACE": true,
	"CALL": true, "GRANT": true, "REVOKE": true,
}

// isSQL reports whether the query should be executed verbatim.
func isSQL(q string) bool {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	return sqlKeywords[strings.ToUpper(fields[0])]
}

// deriveSQL maps a natural-language query onto a simple aggregate or a
// projection of the most relevant column.
func deriveSQL(queryText, tableName, topColumn string, limit int) string {
	lower := strings.ToLower(queryText)
	table := quoteIdent(tableName)
	col := quoteIdent(topColumn)
	switch {
	case strings.Contains(lower, "count") || strings.Contains(lower, "how many"):
		return fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table)
	case strings.Contains(lower, "average") || strings.Contains(lower, "mean"):
		return fmt.Sprintf("SELECT AVG(%s) AS average FROM %s", col, table)
	case strings.Contains(lower, "maximum") || strings.Contains(lower, "max"):
		return fmt.Sprintf("SELECT MAX(%s) AS maximum FROM %s", col, table)
	case strings.Contains(lower, "minimum") || strings.Contains(lower, "min"):
		return fmt.Sprintf("SELECT MIN(%s) AS minimum FROM %s", col, table)
	default:
		return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", col, table, limit)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// searchColumns queries the semantic index, falling back to the keyword index
// when the semantic backend errors. Both indices restrict to datasetID when it
// is non-empty, so the query never errors but may come back empty.
func (p *Processor) searchColumns(ctx context.Context, queryText string, limit int, datasetID string) []*models.ColumnMatch {
	matches, err := p.vectors.SearchColumns(ctx, queryText, limit, datasetID)
	if err != nil {
		p.logger.Warn("semantic search failed, falling back to keyword index", zap.Error(err))
		matches = nil
		if p.keywords != nil {
			if kw, kwErr := p.keywords.Search(ctx, queryText, limit, datasetID); kwErr == nil {
				matches = kw
			} else {
				p.logger.Warn("keyword fallback failed", zap.Error(kwErr))
			}
		}
	}
	return matches
}

// GetColumnRecommendations returns columns related to the query text, best
// first, across all datasets or within one when datasetID is non-empty. Unlike
// the natural-language query path, a semantic backend failure surfaces as an
// error here rather than degrading silently.
func (p *Processor) GetColumnRecommendations(ctx context.Context, queryText string, limit int, datasetID string) ([]*models.ColumnMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	return p.vectors.SearchColumns(ctx, queryText, limit, datasetID)
}

// GetDataset returns dataset metadata.
func (p *Processor) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	return p.catalog.GetDataset(ctx, id)
}

// ListDatasets returns one page of datasets, optionally filtered by search.
func (p *Processor) ListDatasets(ctx context.Context, offset, limit int, search string) (*models.DatasetPage, error) {
	return p.catalog.ListDatasets(ctx, offset, limit, search)
}

// GetDatasetColumns returns one page of a dataset's columns.
func (p *Processor) GetDatasetColumns(ctx context.Context, datasetID string, offset, limit int) (*models.ColumnPage, error) {
	return p.catalog.GetDatasetColumns(ctx, datasetID, offset, limit)
}

// GetColumnGroups returns group headers for a dataset.
func (p *Processor) GetColumnGroups(ctx context.Context, datasetID string) ([]*models.ColumnGroup, error) {
	return p.catalog.GetColumnGroups(ctx, datasetID)
}

// GetColumnGroup returns one column group with members.
func (p *Processor) GetColumnGroup(ctx context.Context, groupID int64) (*models.ColumnGroup, error) {
	return p.catalog.GetColumnGroup(ctx, groupID)
}

// GetColumnGroupSlice returns the groupIndex-th window of groupSize columns in
// ordinal order, for callers that address groups positionally rather than by
// stored group ID. groupSize defaults to 500.
func (p *Processor) GetColumnGroupSlice(ctx context.Context, datasetID string, groupIndex, groupSize int) (*models.ColumnPage, error) {
	if groupIndex < 0 {
		return nil, apperrors.Queryf("group index must be non-negative, got %d", groupIndex)
	}
	if groupSize <= 0 {
		groupSize = 500
	}
	return p.catalog.GetDatasetColumns(ctx, datasetID, groupIndex*groupSize, groupSize)
}

// GetDatasetSample returns the first rows of a dataset.
func (p *Processor) GetDatasetSample(ctx context.Context, datasetID string, limit int) (*models.QueryRows, error) {
	ds, err := p.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return p.store.GetTableSample(ctx, ds.TableName, limit)
}

// UpdateColumnDescription sets a column's description in the catalog.
func (p *Processor) UpdateColumnDescription(ctx context.Context, datasetID, columnName, description string) error {
	return p.catalog.UpdateColumnDescription(ctx, datasetID, columnName, description)
}

// StorageInfo describes where and how a dataset is stored.
type StorageInfo struct {
	DatasetID   string `json:"dataset_id"`
	StorageType string `json:"storage_type"`
	TableName   string `json:"table_name"`
	ColumnCount int    `json:"column_count"`
	RowCount    int64  `json:"row_count"`
}

// CheckDatasetStorage reports the storage backing of a dataset.
func (p *Processor) CheckDatasetStorage(ctx context.Context, datasetID string) (*StorageInfo, error) {
	ds, err := p.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return &StorageInfo{
		DatasetID:   ds.ID,
		StorageType: "duckdb",
		TableName:   ds.TableName,
		ColumnCount: ds.ColumnCount,
		RowCount:    ds.RowCount,
	}, nil
}

// DeleteDataset removes a dataset everywhere: catalog, snapshot, semantic
// index, keyword index. All targets are attempted; failures are aggregated.
// Deleting an unknown dataset is a no-op.
func (p *Processor) DeleteDataset(ctx context.Context, datasetID string) error {
	ds, err := p.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	var errs error
	if err := p.catalog.DeleteDataset(ctx, datasetID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("catalog: %w", err))
	}
	if err := p.store.DropSnapshot(ctx, ds.TableName, ds.SnapshotPath); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("snapshot: %w", err))
	}
	if err := p.vectors.DeleteDataset(ctx, datasetID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("semantic index: %w", err))
	}
	if p.keywords != nil {
		if err := p.keywords.DeleteDataset(ctx, datasetID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("keyword index: %w", err))
		}
	}
	if errs != nil {
		return fmt.Errorf("delete dataset %s: %w", datasetID, errs)
	}

	p.logger.Info("dataset deleted", zap.String("dataset", datasetID))
	return nil
}

// CountDatasets returns the number of cataloged datasets.
func (p *Processor) CountDatasets(ctx context.Context) (int64, error) {
	return p.catalog.CountDatasets(ctx)
}
