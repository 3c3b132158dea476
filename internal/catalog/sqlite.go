package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/models"
)

// sequentialGroupSize is the span of each positional column group.
const sequentialGroupSize = 500

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
	// wideThreshold is the column count above which automatic column groups
	// are created at store time.
	wideThreshold int
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string, wideThreshold int) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db, wideThreshold: wideThreshold}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		table_name TEXT NOT NULL,
		snapshot_path TEXT NOT NULL,
		column_count INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		file_size INTEGER,
		storage_format TEXT DEFAULT 'parquet',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_created_at ON datasets(created_at);

	CREATE TABLE IF NOT EXISTS columns (
		dataset_id TEXT NOT NULL,
		name TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		PRIMARY KEY (dataset_id, name),
		FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_columns_dataset_id ON columns(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_columns_dataset_ordinal ON columns(dataset_id, ordinal);

	CREATE TABLE IF NOT EXISTS column_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		columns TEXT NOT NULL,
		FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_column_groups_dataset_id ON column_groups(dataset_id);
	`
	_, err := db.Exec(schema)
	return err
}

// StoreDataset inserts the dataset row and all column rows in one transaction.
// Columns are inserted in batches; for wide datasets, automatic column groups
// (by type, by name prefix, and sequential spans) are created in the same
// transaction.
func (c *SQLiteCatalog) StoreDataset(ctx context.Context, ds *models.Dataset, cols []*models.Column) error {
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	if ds.StorageFormat == "" {
		ds.StorageFormat = "parquet"
	}
	ds.ColumnCount = len(cols)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (id, name, description, table_name, snapshot_path, column_count, row_count, file_size, storage_format, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.ID, ds.Name, ds.Description, ds.TableName, ds.SnapshotPath,
		ds.ColumnCount, ds.RowCount, ds.FileSize, ds.StorageFormat,
		ds.CreatedAt, ds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO columns (dataset_id, name, ordinal, type, description) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, col := range cols {
		col.DatasetID = ds.ID
		col.Ordinal = i
		if _, err := stmt.ExecContext(ctx, ds.ID, col.Name, col.Ordinal, col.Type, col.Description); err != nil {
			return fmt.Errorf("insert column %s: %w", col.Name, err)
		}
	}

	if c.wideThreshold > 0 && len(cols) > c.wideThreshold {
		if err := createColumnGroups(ctx, tx, ds.ID, cols); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// createColumnGroups derives navigation groups for a wide dataset: one group
// per column type, one per name prefix with at least five members, and
// sequential spans covering the full ordinal range.
func createColumnGroups(ctx context.Context, tx *sql.Tx, datasetID string, cols []*models.Column) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO column_groups (dataset_id, name, description, columns) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	insert := func(name, description string, members []string) error {
		blob, err := json.Marshal(members)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, datasetID, name, description, string(blob))
		return err
	}

	byType := map[models.ColumnType][]string{}
	for _, col := range cols {
		byType[col.Type] = append(byType[col.Type], col.Name)
	}
	types := make([]models.ColumnType, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		if err := insert(fmt.Sprintf("Type: %s", t), fmt.Sprintf("Columns with type %s", t), byType[t]); err != nil {
			return err
		}
	}

	byPrefix := map[string][]string{}
	var prefixes []string
	for _, col := range cols {
		if idx := strings.IndexByte(col.Name, '_'); idx > 0 {
			prefix := col.Name[:idx]
			if len(byPrefix[prefix]) == 0 {
				prefixes = append(prefixes, prefix)
			}
			byPrefix[prefix] = append(byPrefix[prefix], col.Name)
		}
	}
	for _, prefix := range prefixes {
		members := byPrefix[prefix]
		if len(members) < 5 {
			continue
		}
		if err := insert(fmt.Sprintf("Prefix: %s", prefix), fmt.Sprintf("Columns starting with %s_", prefix), members); err != nil {
			return err
		}
	}

	for start := 0; start < len(cols); start += sequentialGroupSize {
		end := start + sequentialGroupSize
		if end > len(cols) {
			end = len(cols)
		}
		members := make([]string, 0, end-start)
		for _, col := range cols[start:end] {
			members = append(members, col.Name)
		}
		name := fmt.Sprintf("Columns %d-%d", start+1, end)
		if err := insert(name, fmt.Sprintf("Sequential group of columns from %d to %d", start+1, end), members); err != nil {
			return err
		}
	}
	return nil
}

// GetDataset returns a dataset by ID.
func (c *SQLiteCatalog) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var ds models.Dataset
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, description, table_name, snapshot_path, column_count, row_count, file_size, storage_format, created_at, updated_at
		 FROM datasets WHERE id = ?`, id,
	).Scan(&ds.ID, &ds.Name, &ds.Description, &ds.TableName, &ds.SnapshotPath,
		&ds.ColumnCount, &ds.RowCount, &ds.FileSize, &ds.StorageFormat,
		&ds.CreatedAt, &ds.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("dataset", id)
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// GetDatasetColumns returns one page of columns in ordinal order. The dataset
// must exist; a dataset with zero columns yields an empty page, not an error.
func (c *SQLiteCatalog) GetDatasetColumns(ctx context.Context, datasetID string, offset, limit int) (*models.ColumnPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	var total int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM columns WHERE dataset_id = ?`, datasetID,
	).Scan(&total)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		// Distinguish an unknown dataset from a known one with no columns.
		if _, err := c.GetDataset(ctx, datasetID); err != nil {
			return nil, err
		}
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT dataset_id, name, ordinal, type, description
		 FROM columns WHERE dataset_id = ?
		 ORDER BY ordinal LIMIT ? OFFSET ?`,
		datasetID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &models.ColumnPage{TotalCount: total, Offset: offset, Limit: limit}
	for rows.Next() {
		var col models.Column
		var desc sql.NullString
		if err := rows.Scan(&col.DatasetID, &col.Name, &col.Ordinal, &col.Type, &desc); err != nil {
			return nil, err
		}
		col.Description = desc.String
		page.Columns = append(page.Columns, &col)
	}
	return page, rows.Err()
}

// GetColumnGroups returns the group headers for a dataset, without members.
// The dataset must exist; narrow datasets simply have no groups.
func (c *SQLiteCatalog) GetColumnGroups(ctx context.Context, datasetID string) ([]*models.ColumnGroup, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, dataset_id, name, description FROM column_groups WHERE dataset_id = ? ORDER BY id`,
		datasetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.ColumnGroup
	for rows.Next() {
		var g models.ColumnGroup
		var desc sql.NullString
		if err := rows.Scan(&g.ID, &g.DatasetID, &g.Name, &desc); err != nil {
			return nil, err
		}
		g.Description = desc.String
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		// Distinguish an unknown dataset from a known one with no groups.
		if _, err := c.GetDataset(ctx, datasetID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// GetColumnGroup returns one group including its member column names.
func (c *SQLiteCatalog) GetColumnGroup(ctx context.Context, groupID int64) (*models.ColumnGroup, error) {
	var g models.ColumnGroup
	var desc sql.NullString
	var membersJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT id, dataset_id, name, description, columns FROM column_groups WHERE id = ?`, groupID,
	).Scan(&g.ID, &g.DatasetID, &g.Name, &desc, &membersJSON)

	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("column group", fmt.Sprintf("%d", groupID))
	}
	if err != nil {
		return nil, err
	}
	g.Description = desc.String
	if err := json.Unmarshal([]byte(membersJSON), &g.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group columns: %w", err)
	}
	return &g, nil
}

// ListDatasets returns one page of datasets ordered newest first. A search
// term filters on name or description substring.
func (c *SQLiteCatalog) ListDatasets(ctx context.Context, offset, limit int, search string) (*models.DatasetPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	var (
		total    int
		rows     *sql.Rows
		err      error
		selectQ  = `SELECT id, name, description, table_name, snapshot_path, column_count, row_count, file_size, storage_format, created_at, updated_at FROM datasets`
		ordering = ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	)
	if search != "" {
		pattern := "%" + search + "%"
		err = c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM datasets WHERE name LIKE ? OR description LIKE ?`,
			pattern, pattern,
		).Scan(&total)
		if err != nil {
			return nil, err
		}
		rows, err = c.db.QueryContext(ctx,
			selectQ+` WHERE name LIKE ? OR description LIKE ?`+ordering,
			pattern, pattern, limit, offset,
		)
	} else {
		err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&total)
		if err != nil {
			return nil, err
		}
		rows, err = c.db.QueryContext(ctx, selectQ+ordering, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &models.DatasetPage{TotalCount: total, Offset: offset, Limit: limit}
	for rows.Next() {
		var ds models.Dataset
		var desc sql.NullString
		if err := rows.Scan(&ds.ID, &ds.Name, &desc, &ds.TableName, &ds.SnapshotPath,
			&ds.ColumnCount, &ds.RowCount, &ds.FileSize, &ds.StorageFormat,
			&ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, err
		}
		ds.Description = desc.String
		page.Datasets = append(page.Datasets, &ds)
	}
	return page, rows.Err()
}

// UpdateColumnDescription sets the description for one column.
func (c *SQLiteCatalog) UpdateColumnDescription(ctx context.Context, datasetID, columnName, description string) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE columns SET description = ? WHERE dataset_id = ? AND name = ?`,
		description, datasetID, columnName,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("column", datasetID+"/"+columnName)
	}

	_, err = c.db.ExecContext(ctx,
		`UPDATE datasets SET updated_at = ? WHERE id = ?`, time.Now(), datasetID)
	return err
}

// DeleteDataset removes a dataset, its columns, and its groups in one
// transaction. Deleting an absent dataset is a no-op.
func (c *SQLiteCatalog) DeleteDataset(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE dataset_id = ?`, id); err != nil {
		return fmt.Errorf("delete columns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM column_groups WHERE dataset_id = ?`, id); err != nil {
		return fmt.Errorf("delete column groups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return tx.Commit()
}

// CountDatasets returns the total number of datasets.
func (c *SQLiteCatalog) CountDatasets(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
