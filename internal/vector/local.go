package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/embedding"
	"github.com/sapdo/widetable/internal/models"
)

// LocalStore is an in-memory column index using brute-force inner product
// search, persisted to a single file. Suitable for tests and for deployments
// without an external vector service.
type LocalStore struct {
	embedder   embedding.Embedder
	dimensions int
	batchSize  int
	path       string

	mu      sync.RWMutex
	records []localRecord
}

type localRecord struct {
	id     string
	vector []float32
	meta   models.ColumnMatch
}

// NewLocalStore creates a local column store. If path names an existing index
// file, its contents are loaded; a missing file starts empty.
func NewLocalStore(embedder embedding.Embedder, batchSize int, path string) (*LocalStore, error) {
	s := &LocalStore{
		embedder:   embedder,
		dimensions: embedder.Dimensions(),
		batchSize:  batchSize,
		path:       path,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// IndexColumns embeds and stores the columns in batches.
func (s *LocalStore) IndexColumns(ctx context.Context, datasetID string, cols []*models.Column) (int, error) {
	total := 0
	for _, batch := range columnBatches(cols, s.batchSize) {
		texts := make([]string, len(batch))
		for i, col := range batch {
			texts[i] = ColumnText(col)
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, apperrors.WrapIndexing(err, "failed to embed column batch")
		}

		s.mu.Lock()
		for i, col := range batch {
			if len(vectors[i]) != s.dimensions {
				s.mu.Unlock()
				return total, apperrors.Indexingf("embedding dimension mismatch: got %d, expected %d", len(vectors[i]), s.dimensions)
			}
			vec := make([]float32, s.dimensions)
			copy(vec, vectors[i])
			s.records = append(s.records, localRecord{
				id:     VectorID(datasetID, col.Name, 30),
				vector: vec,
				meta: models.ColumnMatch{
					DatasetID:   datasetID,
					ColumnName:  col.Name,
					ColumnType:  string(col.Type),
					Description: col.Description,
				},
			})
		}
		s.mu.Unlock()
		total += len(batch)
	}

	if err := s.save(); err != nil {
		return total, err
	}
	return total, nil
}

// SearchColumns returns the limit closest columns, best first. Embeddings are
// unit length, so inner product equals cosine similarity. A non-empty
// datasetID narrows the candidate set before ranking.
func (s *LocalStore) SearchColumns(ctx context.Context, query string, limit int, datasetID string) ([]*models.ColumnMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.WrapIndexing(err, "failed to embed query")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, 0, len(s.records))
	for i, rec := range s.records {
		if datasetID != "" && rec.meta.DatasetID != datasetID {
			continue
		}
		var dot float64
		for j := 0; j < s.dimensions && j < len(q); j++ {
			dot += float64(q[j] * rec.vector[j])
		}
		scores = append(scores, scored{idx: i, score: dot})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if limit > len(scores) {
		limit = len(scores)
	}
	out := make([]*models.ColumnMatch, limit)
	for i := 0; i < limit; i++ {
		match := s.records[scores[i].idx].meta
		match.Score = scores[i].score
		out[i] = &match
	}
	return out, nil
}

// DeleteDataset removes every record belonging to the dataset.
func (s *LocalStore) DeleteDataset(ctx context.Context, datasetID string) error {
	s.mu.Lock()
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.meta.DatasetID != datasetID {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	s.mu.Unlock()
	return s.save()
}

// Size returns the number of indexed columns.
func (s *LocalStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close persists the index.
func (s *LocalStore) Close() error {
	return s.save()
}

// save writes the index to disk. Format: dimensions (4), record count (4),
// then per record: id, dataset ID, column name, column type, and description
// as length-prefixed strings, followed by dimensions*4 bytes of vector data.
func (s *LocalStore) save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(s.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, rec := range s.records {
		for _, field := range []string{rec.id, rec.meta.DatasetID, rec.meta.ColumnName, rec.meta.ColumnType, rec.meta.Description} {
			if err := writeString(f, field); err != nil {
				return err
			}
		}
		if _, err := f.Write(float32SliceToBytes(rec.vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// load replaces the in-memory contents from disk. A missing file is not an
// error; a dimension mismatch is.
func (s *LocalStore) load() error {
	if s.path == "" {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != s.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, s.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]localRecord, 0, n)
	buf := make([]byte, s.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var rec localRecord
		fields := []*string{&rec.id, &rec.meta.DatasetID, &rec.meta.ColumnName, &rec.meta.ColumnType, &rec.meta.Description}
		for _, field := range fields {
			v, err := readString(f)
			if err != nil {
				return err
			}
			*field = v
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		rec.vector = bytesToFloat32Slice(buf)
		s.records = append(s.records, rec)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write string len: %w", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read string len: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(buf), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
