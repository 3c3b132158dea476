package columnar

import (
	"encoding/csv"
	"io"

	"github.com/sapdo/widetable/internal/apperrors"
)

// chunkReader reads CSV rows in fixed row-count chunks. Chunking by rows (not
// bytes) keeps per-column type inference stable within a chunk.
type chunkReader struct {
	r      *csv.Reader
	header []string
}

// newChunkReader reads and validates the header row. An empty stream or an
// unparsable header is an ingestion error.
func newChunkReader(r io.Reader) (*chunkReader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, apperrors.Ingestionf("csv file is empty")
	}
	if err != nil {
		return nil, apperrors.WrapIngestion(err, "failed to parse csv header")
	}
	if len(header) == 0 {
		return nil, apperrors.Ingestionf("csv header has no columns")
	}
	cr.FieldsPerRecord = len(header)
	return &chunkReader{r: cr, header: header}, nil
}

// Header returns the raw header cells.
func (c *chunkReader) Header() []string {
	return c.header
}

// ReadChunk reads up to n rows. It returns io.EOF (with any final partial
// chunk) when the stream is exhausted. Short rows are an ingestion error.
func (c *chunkReader) ReadChunk(n int) ([][]string, error) {
	rows := make([][]string, 0, n)
	for len(rows) < n {
		row, err := c.r.Read()
		if err == io.EOF {
			return rows, io.EOF
		}
		if err != nil {
			return rows, apperrors.WrapIngestion(err, "malformed csv row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// sampleColumn returns up to max values of column i from the chunk, for type inference.
func sampleColumn(rows [][]string, i, max int) []string {
	n := len(rows)
	if n > max {
		n = max
	}
	out := make([]string, 0, n)
	for _, row := range rows[:n] {
		out = append(out, row[i])
	}
	return out
}
