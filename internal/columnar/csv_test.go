package columnar

import (
	"io"
	"strings"
	"testing"

	"github.com/sapdo/widetable/internal/apperrors"
)

func TestChunkReaderReadsInOrder(t *testing.T) {
	input := "a,b\n1,x\n2,y\n3,z\n4,w\n5,v\n"
	cr, err := newChunkReader(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if got := cr.Header(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected header: %v", got)
	}

	chunk, err := cr.ReadChunk(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunk) != 2 || chunk[0][0] != "1" || chunk[1][0] != "2" {
		t.Fatalf("unexpected first chunk: %v", chunk)
	}

	chunk, err = cr.ReadChunk(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunk) != 2 || chunk[0][0] != "3" {
		t.Fatalf("unexpected second chunk: %v", chunk)
	}

	chunk, err = cr.ReadChunk(2)
	if err != io.EOF {
		t.Fatalf("expected EOF with final partial chunk, got %v", err)
	}
	if len(chunk) != 1 || chunk[0][0] != "5" {
		t.Fatalf("unexpected final chunk: %v", chunk)
	}
}

func TestChunkReaderEmptyStream(t *testing.T) {
	_, err := newChunkReader(strings.NewReader(""))
	if !apperrors.Is(err, apperrors.KindIngestion) {
		t.Fatalf("expected ingestion error for empty stream, got %v", err)
	}
}

func TestChunkReaderShortRow(t *testing.T) {
	cr, err := newChunkReader(strings.NewReader("a,b,c\n1,2\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = cr.ReadChunk(10)
	if !apperrors.Is(err, apperrors.KindIngestion) {
		t.Fatalf("expected ingestion error for short row, got %v", err)
	}
}

func TestSampleColumn(t *testing.T) {
	rows := [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}}
	got := sampleColumn(rows, 1, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected sample: %v", got)
	}
	got = sampleColumn(rows, 0, 10)
	if len(got) != 3 {
		t.Fatalf("sample should cap at row count, got %v", got)
	}
}
