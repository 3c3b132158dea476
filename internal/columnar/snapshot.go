package columnar

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sapdo/widetable/internal/models"
)

// parquetNodeFor maps an inferred column type to a parquet node. All columns
// are optional: empty CSV cells become nulls.
func parquetNodeFor(t models.ColumnType) parquet.Node {
	switch t {
	case models.TypeInteger:
		return parquet.Optional(parquet.Int(64))
	case models.TypeFloat:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case models.TypeBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	case models.TypeTimestamp:
		return parquet.Optional(parquet.Timestamp(parquet.Millisecond))
	default:
		return parquet.Optional(parquet.String())
	}
}

// buildParquetSchema builds a flat parquet schema from the finalized columns.
func buildParquetSchema(name string, cols []*models.Column) *parquet.Schema {
	group := parquet.Group{}
	for _, c := range cols {
		group[c.Name] = parquetNodeFor(c.Type)
	}
	return parquet.NewSchema(name, group)
}

// snapshotWriter appends row chunks to a parquet snapshot file. Each chunk is
// flushed as its own row group, so peak memory stays proportional to the chunk
// size times the column count, and chunks land in input row order.
type snapshotWriter struct {
	f      *os.File
	w      *parquet.GenericWriter[map[string]any]
	cols   []*models.Column
	path   string
	closed bool
}

func newSnapshotWriter(path string, cols []*models.Column) (*snapshotWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	schema := buildParquetSchema("dataset", cols)
	w := parquet.NewGenericWriter[map[string]any](f, schema)
	return &snapshotWriter{f: f, w: w, cols: cols, path: path}, nil
}

// WriteChunk converts and appends one chunk of raw rows, then closes the row group.
func (s *snapshotWriter) WriteChunk(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]map[string]any, len(rows))
	for i, row := range rows {
		rec := make(map[string]any, len(s.cols))
		for j, col := range s.cols {
			if v := convertValue(row[j], col.Type); v != nil {
				rec[col.Name] = v
			}
		}
		records[i] = rec
	}
	if _, err := s.w.Write(records); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush parquet row group: %w", err)
	}
	return nil
}

// Close finalizes the parquet footer and the underlying file.
func (s *snapshotWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Close(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return s.f.Close()
}

// Abort closes and removes the partial snapshot file.
func (s *snapshotWriter) Abort() {
	if !s.closed {
		s.closed = true
		_ = s.w.Close()
		_ = s.f.Close()
	}
	_ = os.Remove(s.path)
}

// convertValue parses a raw cell per the widened column type. Empty cells and
// values that fail to parse (possible only for values outside the inference
// sample) become nulls rather than failing the ingest.
func convertValue(raw string, t models.ColumnType) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	switch t {
	case models.TypeInteger:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		return nil
	case models.TypeFloat:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return nil
	case models.TypeBoolean:
		switch strings.ToLower(s) {
		case "true", "t", "yes":
			return true
		case "false", "f", "no":
			return false
		}
		return nil
	case models.TypeTimestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli()
			}
		}
		return nil
	default:
		return s
	}
}
