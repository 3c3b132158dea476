package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sapdo/widetable/internal/embedding"
	"github.com/sapdo/widetable/internal/models"
)

func testColumns() []*models.Column {
	return []*models.Column{
		{Name: "customer_revenue", Type: models.TypeFloat, Description: "total revenue per customer"},
		{Name: "signup_date", Type: models.TypeTimestamp, Description: "account creation date"},
		{Name: "region", Type: models.TypeText, Description: "sales region"},
	}
}

func TestLocalStore_IndexAndSearch(t *testing.T) {
	embedder := embedding.NewMockEmbedder(32)
	store, err := NewLocalStore(embedder, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	n, err := store.IndexColumns(ctx, "ds1", testColumns())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("indexed %d, want 3", n)
	}

	matches, err := store.SearchColumns(ctx, "revenue per customer", 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}

	// Scores are non-increasing.
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("scores out of order: %f after %f", matches[i].Score, matches[i-1].Score)
		}
	}
	for _, m := range matches {
		if m.DatasetID != "ds1" {
			t.Errorf("unexpected dataset %q", m.DatasetID)
		}
	}
}

func TestLocalStore_SearchScopedToDataset(t *testing.T) {
	embedder := embedding.NewMockEmbedder(32)
	store, err := NewLocalStore(embedder, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	// A much larger unrelated dataset must not crowd out the scoped dataset's
	// columns, whatever its columns score globally.
	var wide []*models.Column
	for i := 0; i < 60; i++ {
		wide = append(wide, &models.Column{
			Name: fmt.Sprintf("metric_%02d", i), Type: models.TypeFloat,
			Description: fmt.Sprintf("metric number %d", i),
		})
	}
	if _, err := store.IndexColumns(ctx, "wide", wide); err != nil {
		t.Fatal(err)
	}
	if _, err := store.IndexColumns(ctx, "narrow", []*models.Column{
		{Name: "temperature", Type: models.TypeFloat, Description: "reading in celsius"},
	}); err != nil {
		t.Fatal(err)
	}

	matches, err := store.SearchColumns(ctx, "temperature", 5, "narrow")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want exactly the scoped dataset's column", len(matches))
	}
	if matches[0].DatasetID != "narrow" || matches[0].ColumnName != "temperature" {
		t.Errorf("unexpected match: %+v", matches[0])
	}

	// An unscoped search still ranks across every dataset.
	all, err := store.SearchColumns(ctx, "temperature", 61, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 61 {
		t.Errorf("unscoped search returned %d candidates, want 61", len(all))
	}
}

func TestLocalStore_SearchEmptyIndex(t *testing.T) {
	store, err := NewLocalStore(embedding.NewMockEmbedder(16), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	matches, err := store.SearchColumns(context.Background(), "anything", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("empty index should return no matches, got %d", len(matches))
	}
}

func TestLocalStore_DeleteDatasetIdempotent(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	store, err := NewLocalStore(embedder, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.IndexColumns(ctx, "ds1", testColumns()); err != nil {
		t.Fatal(err)
	}
	if _, err := store.IndexColumns(ctx, "ds2", testColumns()[:1]); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteDataset(ctx, "ds1"); err != nil {
		t.Fatal(err)
	}
	if store.Size() != 1 {
		t.Fatalf("size = %d, want 1 after delete", store.Size())
	}

	// Deleting again, or deleting an unknown dataset, is a no-op.
	if err := store.DeleteDataset(ctx, "ds1"); err != nil {
		t.Fatalf("second delete should succeed: %v", err)
	}
	if err := store.DeleteDataset(ctx, "never-indexed"); err != nil {
		t.Fatalf("deleting unknown dataset should succeed: %v", err)
	}

	matches, err := store.SearchColumns(ctx, "revenue", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.DatasetID == "ds1" {
			t.Error("deleted dataset still present in search results")
		}
	}
}

func TestLocalStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.idx")
	embedder := embedding.NewMockEmbedder(16)
	ctx := context.Background()

	store, err := NewLocalStore(embedder, 10, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.IndexColumns(ctx, "ds1", testColumns()); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewLocalStore(embedder, 10, path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Size() != 3 {
		t.Fatalf("reloaded size = %d, want 3", reloaded.Size())
	}

	matches, err := reloaded.SearchColumns(ctx, "total revenue per customer", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].DatasetID != "ds1" || matches[0].Description == "" {
		t.Errorf("metadata lost in round trip: %+v", matches[0])
	}
}
