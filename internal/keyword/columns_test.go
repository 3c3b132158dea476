package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sapdo/widetable/internal/models"
)

func newTestIndex(t *testing.T) *ColumnIndex {
	t.Helper()
	idx, err := NewColumnIndex(filepath.Join(t.TempDir(), "columns.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestColumnIndex_SearchByNameAndDescription(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	cols := []*models.Column{
		{Name: "customer_revenue", Type: models.TypeFloat, Description: "total revenue per customer"},
		{Name: "signup_date", Type: models.TypeTimestamp, Description: "account creation date"},
		{Name: "region", Type: models.TypeText},
	}
	if err := idx.IndexColumns(ctx, "ds1", cols); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Search(ctx, "revenue", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a hit for revenue")
	}
	if matches[0].ColumnName != "customer_revenue" {
		t.Errorf("top hit = %q, want customer_revenue", matches[0].ColumnName)
	}
	if matches[0].DatasetID != "ds1" {
		t.Errorf("dataset = %q, want ds1", matches[0].DatasetID)
	}

	// Description words also match.
	matches, err = idx.Search(ctx, "creation", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 || matches[0].ColumnName != "signup_date" {
		t.Errorf("description search failed: %+v", matches)
	}
}

func TestColumnIndex_SearchScopedToDataset(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.IndexColumns(ctx, "ds1", []*models.Column{
		{Name: "order_total", Type: models.TypeFloat, Description: "total order value"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexColumns(ctx, "ds2", []*models.Column{
		{Name: "invoice_total", Type: models.TypeFloat, Description: "total invoice value"},
	}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Search(ctx, "total", 10, "ds2")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 from ds2", len(matches))
	}
	if matches[0].DatasetID != "ds2" || matches[0].ColumnName != "invoice_total" {
		t.Errorf("unexpected scoped match: %+v", matches[0])
	}

	all, err := idx.Search(ctx, "total", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("unscoped search returned %d matches, want 2", len(all))
	}
}

func TestColumnIndex_DeleteDataset(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	cols := []*models.Column{
		{Name: "amount", Type: models.TypeFloat},
		{Name: "currency", Type: models.TypeText},
	}
	if err := idx.IndexColumns(ctx, "ds1", cols); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexColumns(ctx, "ds2", cols); err != nil {
		t.Fatal(err)
	}

	if err := idx.DeleteDataset(ctx, "ds1"); err != nil {
		t.Fatal(err)
	}
	count, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (only ds2 remains)", count)
	}

	// Deleting an absent dataset is a no-op.
	if err := idx.DeleteDataset(ctx, "ds1"); err != nil {
		t.Fatalf("second delete should succeed: %v", err)
	}
}
