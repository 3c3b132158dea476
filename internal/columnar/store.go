package columnar

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/models"
)

// Result is the outcome of a successful snapshot ingest.
type Result struct {
	TableName    string
	SnapshotPath string
	RowCount     int64
	FileSize     int64
	Columns      []*models.Column
}

// Store streams tabular files into parquet snapshots and executes read-only
// SQL against them through DuckDB. One parquet file per dataset; a shared
// DuckDB database holds a view per dataset table.
type Store struct {
	db      *sql.DB
	dataDir string
	ingest  config.IngestConfig
	query   config.QueryConfig
	logger  *zap.Logger
}

// NewStore opens (or creates) the DuckDB database and the snapshot directory.
func NewStore(dataDir, duckdbPath string, ingest config.IngestConfig, query config.QueryConfig, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if dir := filepath.Dir(duckdbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create duckdb dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", duckdbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Store{
		db:      db,
		dataDir: dataDir,
		ingest:  ingest,
		query:   query,
		logger:  logger,
	}, nil
}

// Close closes the DuckDB connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ProcessCSVFile streams the CSV input into a new parquet snapshot and
// registers a DuckDB view over it. The input is spooled to a temp file and
// scanned twice: pass one infers the schema chunk by chunk (widening type
// conflicts), pass two writes typed row groups in input order. Peak memory is
// bounded by chunk size times column count, not by file size.
func (s *Store) ProcessCSVFile(ctx context.Context, r io.Reader, datasetName string) (*Result, error) {
	spool, size, err := s.spool(r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(spool)

	tableName := s.newTableName(datasetName)

	cols, rowCount, err := s.scanSchema(ctx, spool)
	if err != nil {
		return nil, err
	}

	snapshotPath := filepath.Join(s.dataDir, tableName+".parquet")
	if err := s.writeSnapshot(ctx, spool, snapshotPath, cols); err != nil {
		return nil, err
	}

	if err := s.registerView(ctx, tableName, snapshotPath); err != nil {
		_ = os.Remove(snapshotPath)
		return nil, err
	}

	s.logger.Info("snapshot written",
		zap.String("table", tableName),
		zap.Int64("rows", rowCount),
		zap.Int("columns", len(cols)),
		zap.Int64("bytes", size),
	)
	return &Result{
		TableName:    tableName,
		SnapshotPath: snapshotPath,
		RowCount:     rowCount,
		FileSize:     size,
		Columns:      cols,
	}, nil
}

// spool copies the input to a temp file so it can be scanned twice, and
// returns the temp path and byte size.
func (s *Store) spool(r io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(s.dataDir, "ingest-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, apperrors.WrapIngestion(err, "failed to read input")
	}
	if closeErr != nil {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("close spool file: %w", closeErr)
	}
	if size == 0 {
		_ = os.Remove(f.Name())
		return "", 0, apperrors.Ingestionf("csv file is empty")
	}
	return f.Name(), size, nil
}

// scanSchema is ingestion pass one: a fold over row chunks whose accumulator is
// the schema so far. Returns the finalized columns and the row count.
func (s *Store) scanSchema(ctx context.Context, path string) ([]*models.Column, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open spool file: %w", err)
	}
	defer f.Close()

	cr, err := newChunkReader(f)
	if err != nil {
		return nil, 0, err
	}
	names := disambiguateNames(cr.Header())
	if len(names) > s.ingest.MaxColumns {
		return nil, 0, apperrors.Ingestionf("csv has %d columns, maximum is %d", len(names), s.ingest.MaxColumns)
	}

	types := make([]models.ColumnType, len(names))
	var rowCount int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rows, readErr := cr.ReadChunk(s.ingest.ChunkSize)
		if readErr != nil && readErr != io.EOF {
			return nil, 0, readErr
		}
		if len(rows) > 0 {
			chunkTypes := make([]models.ColumnType, len(names))
			for i := range names {
				chunkTypes[i] = inferColumnType(sampleColumn(rows, i, s.ingest.SampleRows))
			}
			types = mergeSchemas(types, chunkTypes)
			rowCount += int64(len(rows))
			if rowCount > s.ingest.MaxRows {
				return nil, 0, apperrors.Ingestionf("csv exceeds maximum of %d rows", s.ingest.MaxRows)
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	if rowCount == 0 {
		return nil, 0, apperrors.Ingestionf("csv has no data rows")
	}

	types = finalizeTypes(types)
	cols := make([]*models.Column, len(names))
	for i, name := range names {
		cols[i] = &models.Column{Name: name, Ordinal: i, Type: types[i]}
	}
	return cols, rowCount, nil
}

// writeSnapshot is ingestion pass two: re-reads the spool and writes typed
// parquet row groups, one per chunk, in input row order.
func (s *Store) writeSnapshot(ctx context.Context, spoolPath, snapshotPath string, cols []*models.Column) error {
	f, err := os.Open(spoolPath)
	if err != nil {
		return fmt.Errorf("reopen spool file: %w", err)
	}
	defer f.Close()

	cr, err := newChunkReader(f)
	if err != nil {
		return err
	}
	w, err := newSnapshotWriter(snapshotPath, cols)
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			w.Abort()
			return err
		}
		rows, readErr := cr.ReadChunk(s.ingest.ChunkSize)
		if readErr != nil && readErr != io.EOF {
			w.Abort()
			return readErr
		}
		if err := w.WriteChunk(rows); err != nil {
			w.Abort()
			return err
		}
		if readErr == io.EOF {
			break
		}
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(snapshotPath)
		return err
	}
	return nil
}

// QueryTable executes read-only SQL against the dataset's view. Any statement
// that is not a SELECT (or WITH ... SELECT) is rejected before execution. The
// engine's error message is preserved verbatim for caller self-correction.
func (s *Store) QueryTable(ctx context.Context, tableName, sqlText string, limit int) (*models.QueryRows, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, apperrors.Queryf("invalid table name: %s", tableName)
	}
	if err := validateReadOnly(sqlText); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.query.DefaultLimit
	}
	if limit > s.query.MaxLimit {
		limit = s.query.MaxLimit
	}
	stmt := strings.TrimRight(strings.TrimSpace(sqlText), ";")
	if !limitPattern.MatchString(stmt) {
		stmt = fmt.Sprintf("%s LIMIT %d", stmt, limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, apperrors.WrapQuery(err, "query failed")
	}
	defer rows.Close()
	return collectRows(rows, limit)
}

// GetTableColumns returns the view's columns in ordinal order.
func (s *Store) GetTableColumns(ctx context.Context, tableName string) ([]*models.Column, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, apperrors.Queryf("invalid table name: %s", tableName)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteString(tableName)))
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, apperrors.NotFound("table", tableName)
		}
		return nil, apperrors.WrapQuery(err, "describe table failed")
	}
	defer rows.Close()

	var cols []*models.Column
	ordinal := 0
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    bool
			defaultVal sql.NullString
			pk         bool
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		cols = append(cols, &models.Column{
			Name:    name,
			Ordinal: ordinal,
			Type:    duckdbTypeToColumnType(typ),
		})
		ordinal++
	}
	return cols, rows.Err()
}

// GetTableSample returns the first limit rows in ordinal order. The limit is
// clamped to the configured sample maximum.
func (s *Store) GetTableSample(ctx context.Context, tableName string, limit int) (*models.QueryRows, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, apperrors.Queryf("invalid table name: %s", tableName)
	}
	if limit <= 0 || limit > s.query.SampleLimit {
		limit = s.query.SampleLimit
	}
	return s.QueryTable(ctx, tableName, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(tableName), limit), limit)
}

// DropSnapshot removes the dataset's view and parquet file. Missing pieces are
// not an error; deletion is idempotent.
func (s *Store) DropSnapshot(ctx context.Context, tableName, snapshotPath string) error {
	if !tableNamePattern.MatchString(tableName) {
		return apperrors.Queryf("invalid table name: %s", tableName)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", quoteIdent(tableName))); err != nil {
		return fmt.Errorf("drop view %s: %w", tableName, err)
	}
	if snapshotPath != "" {
		if err := os.Remove(snapshotPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove snapshot %s: %w", snapshotPath, err)
		}
	}
	return nil
}

// registerView creates (or replaces) the DuckDB view over the parquet snapshot.
func (s *Store) registerView(ctx context.Context, tableName, snapshotPath string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)",
		quoteIdent(tableName), quoteString(snapshotPath))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("register view %s: %w", tableName, err)
	}
	return nil
}

// newTableName derives a unique SQL-safe table name from the dataset name.
func (s *Store) newTableName(datasetName string) string {
	clean := strings.ToLower(normalizeName(datasetName))
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("dataset_%s_%s", clean, suffix)
}

func duckdbTypeToColumnType(t string) models.ColumnType {
	switch strings.ToUpper(t) {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT", "UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return models.TypeInteger
	case "FLOAT", "REAL", "DOUBLE", "DECIMAL":
		return models.TypeFloat
	case "BOOLEAN":
		return models.TypeBoolean
	case "TIMESTAMP", "TIMESTAMP WITH TIME ZONE", "DATE", "TIMESTAMP_MS", "TIMESTAMP_NS", "TIMESTAMP_S":
		return models.TypeTimestamp
	default:
		return models.TypeText
	}
}

// collectRows drains a sql.Rows into a QueryRows, capping at limit.
func collectRows(rows *sql.Rows, limit int) (*models.QueryRows, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}
	out := &models.QueryRows{Columns: colNames}
	for rows.Next() {
		if len(out.Rows) >= limit {
			out.Truncated = true
			break
		}
		values := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapQuery(err, "query failed")
	}
	return out, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
