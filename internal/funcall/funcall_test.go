package funcall

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sapdo/widetable/internal/catalog"
	"github.com/sapdo/widetable/internal/columnar"
	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/embedding"
	"github.com/sapdo/widetable/internal/keyword"
	"github.com/sapdo/widetable/internal/models"
	"github.com/sapdo/widetable/internal/vector"
	"github.com/sapdo/widetable/internal/widetable"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()

	ingest := config.IngestConfig{ChunkSize: 100, SampleRows: 100, MaxColumns: 50000, MaxRows: 1000000}
	query := config.QueryConfig{DefaultLimit: 1000, MaxLimit: 10000, SampleLimit: 1000}

	store, err := columnar.NewStore(dir, filepath.Join(dir, "wt.duckdb"), ingest, query, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cat, err := catalog.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"), 1600)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	vectors, err := vector.NewLocalStore(embedding.NewMockEmbedder(16), 100, "")
	if err != nil {
		t.Fatal(err)
	}
	keywords, err := keyword.NewColumnIndex(filepath.Join(dir, "columns.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { keywords.Close() })

	p := widetable.NewProcessor(store, cat, vectors, keywords, query, zap.NewNop())
	res, err := p.ProcessCSVFile(context.Background(),
		strings.NewReader("id,amount\n1,10.5\n2,20.0\n"), "orders", "")
	if err != nil {
		t.Fatal(err)
	}
	return NewExecutor(p), res.DatasetID
}

func TestExecuteCheckDatasetStorage(t *testing.T) {
	e, datasetID := newTestExecutor(t)
	ctx := context.Background()

	out := e.Execute(ctx, "check_dataset_storage",
		json.RawMessage(`{"dataset_id":"`+datasetID+`"}`))
	info, ok := out.(*widetable.StorageInfo)
	if !ok {
		t.Fatalf("unexpected result type %T: %v", out, out)
	}
	if info.StorageType != "duckdb" || info.RowCount != 2 {
		t.Errorf("unexpected storage info: %+v", info)
	}
}

func TestExecuteErrorsAreMaps(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	cases := []struct {
		name string
		args string
	}{
		{"check_dataset_storage", `{"dataset_id":"missing"}`},
		{"check_dataset_storage", `{}`},
		{"query_duckdb_dataset", `{"dataset_id":"missing","query_text":"SELECT 1"}`},
		{"get_column_recommendations", `{}`},
		{"no_such_function", `{}`},
		{"query_duckdb_dataset", `not json`},
	}
	for _, c := range cases {
		out := e.Execute(ctx, c.name, json.RawMessage(c.args))
		m, ok := out.(map[string]any)
		if !ok {
			t.Errorf("%s(%s): result %T is not an error map", c.name, c.args, out)
			continue
		}
		if msg, ok := m["error"].(string); !ok || msg == "" {
			t.Errorf("%s(%s): missing error message: %v", c.name, c.args, m)
		}
	}
}

func TestExecuteQueryDataset(t *testing.T) {
	e, datasetID := newTestExecutor(t)
	ctx := context.Background()

	out := e.Execute(ctx, "query_duckdb_dataset",
		json.RawMessage(`{"dataset_id":"`+datasetID+`","query_text":"SELECT COUNT(*) AS n FROM orders_placeholder","limit":10}`))
	// Bad table in SQL must surface as an error map, not a panic or Go error.
	if m, ok := out.(map[string]any); ok {
		if _, hasErr := m["error"]; !hasErr {
			t.Errorf("expected error map for bad SQL, got %v", m)
		}
	}

	// Results marshal to JSON cleanly.
	out = e.Execute(ctx, "get_column_recommendations",
		json.RawMessage(`{"query_text":"order amount","limit":3}`))
	if _, err := json.Marshal(out); err != nil {
		t.Fatalf("result not JSON-serializable: %v", err)
	}
}

func TestExecuteRecommendationsScopedToDataset(t *testing.T) {
	e, datasetID := newTestExecutor(t)
	ctx := context.Background()

	out := e.Execute(ctx, "get_column_recommendations",
		json.RawMessage(`{"query_text":"amount","limit":5,"dataset_id":"`+datasetID+`"}`))
	matches, ok := out.([]*models.ColumnMatch)
	if !ok {
		t.Fatalf("unexpected result type %T: %v", out, out)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches from the scoped dataset")
	}
	for _, m := range matches {
		if m.DatasetID != datasetID {
			t.Errorf("match from dataset %q, want %q", m.DatasetID, datasetID)
		}
	}

	// Scoping to an unindexed dataset yields an empty list, not an error.
	out = e.Execute(ctx, "get_column_recommendations",
		json.RawMessage(`{"query_text":"amount","limit":5,"dataset_id":"missing"}`))
	matches, ok = out.([]*models.ColumnMatch)
	if !ok {
		t.Fatalf("unexpected result type %T: %v", out, out)
	}
	if len(matches) != 0 {
		t.Errorf("unindexed dataset scope returned %d matches, want 0", len(matches))
	}
}

func TestSchemasAreWellFormed(t *testing.T) {
	if len(Schemas) != 3 {
		t.Fatalf("expected 3 function schemas, got %d", len(Schemas))
	}
	names := map[string]bool{}
	for _, s := range Schemas {
		if s.Type != "function" || s.Name == "" {
			t.Errorf("malformed schema: %+v", s)
		}
		if names[s.Name] {
			t.Errorf("duplicate schema name %q", s.Name)
		}
		names[s.Name] = true
		if _, err := json.Marshal(s); err != nil {
			t.Errorf("schema %s not serializable: %v", s.Name, err)
		}
	}
	for _, want := range []string{"check_dataset_storage", "get_column_recommendations", "query_duckdb_dataset"} {
		if !names[want] {
			t.Errorf("missing schema %q", want)
		}
	}
}
