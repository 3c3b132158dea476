package columnar

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/sapdo/widetable/internal/apperrors"
)

// ProcessXLSXFile ingests the first sheet of an XLSX workbook. The sheet is
// streamed row by row into a temporary CSV so that the CSV pipeline (chunked
// inference, widening, parquet row groups) applies unchanged.
func (s *Store) ProcessXLSXFile(ctx context.Context, r io.Reader, datasetName string) (*Result, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.WrapIngestion(err, "failed to open xlsx file")
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.Ingestionf("xlsx workbook has no sheets")
	}

	tmp, err := os.CreateTemp(s.dataDir, "xlsx-*.csv")
	if err != nil {
		return nil, fmt.Errorf("create xlsx spool file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := sheetToCSV(wb, sheets[0], tmp); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close xlsx spool file: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reopen xlsx spool file: %w", err)
	}
	defer f.Close()
	return s.ProcessCSVFile(ctx, f, datasetName)
}

// sheetToCSV streams one sheet into w, padding short rows to the header width.
func sheetToCSV(wb *excelize.File, sheet string, w io.Writer) error {
	rows, err := wb.Rows(sheet)
	if err != nil {
		return apperrors.WrapIngestion(err, "failed to read xlsx rows")
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	width := 0
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return apperrors.WrapIngestion(err, "failed to read xlsx row")
		}
		if width == 0 {
			width = len(cells)
			if width == 0 {
				return apperrors.Ingestionf("xlsx sheet %s has an empty header row", sheet)
			}
		}
		for len(cells) < width {
			cells = append(cells, "")
		}
		if len(cells) > width {
			cells = cells[:width]
		}
		if err := cw.Write(cells); err != nil {
			return fmt.Errorf("write xlsx spool row: %w", err)
		}
	}
	if err := rows.Error(); err != nil {
		return apperrors.WrapIngestion(err, "failed to iterate xlsx rows")
	}
	cw.Flush()
	return cw.Error()
}
