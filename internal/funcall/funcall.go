// Package funcall exposes dataset operations as LLM-callable functions.
// Every call returns a JSON-serializable value; failures come back as
// {"error": message} rather than Go errors so the calling model can read and
// react to them.
package funcall

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sapdo/widetable/internal/models"
	"github.com/sapdo/widetable/internal/widetable"
)

// Schema describes one callable function in OpenAI function-calling format.
type Schema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Strict      bool           `json:"strict"`
}

// Schemas lists the functions an LLM may call against the dataset service.
var Schemas = []Schema{
	{
		Type:        "function",
		Name:        "check_dataset_storage",
		Description: "Check how a dataset is stored and get its table name, column count, and row count",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dataset_id": map[string]any{
					"type":        "string",
					"description": "ID of the dataset to inspect",
				},
			},
			"required":             []string{"dataset_id"},
			"additionalProperties": false,
		},
		Strict: true,
	},
	{
		Type:        "function",
		Name:        "get_column_recommendations",
		Description: "Find columns semantically related to a query, across all datasets or within one",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query_text": map[string]any{
					"type":        "string",
					"description": "Natural language description of the columns to find",
				},
				"limit": map[string]any{
					"type":        []string{"integer", "null"},
					"description": "Maximum number of recommendations to return",
				},
				"dataset_id": map[string]any{
					"type":        []string{"string", "null"},
					"description": "Restrict recommendations to this dataset",
				},
			},
			"required":             []string{"query_text", "limit", "dataset_id"},
			"additionalProperties": false,
		},
		Strict: true,
	},
	{
		Type:        "function",
		Name:        "query_duckdb_dataset",
		Description: "Query a dataset with SQL or natural language",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dataset_id": map[string]any{
					"type":        "string",
					"description": "ID of the dataset to query",
				},
				"query_text": map[string]any{
					"type":        "string",
					"description": "A SQL SELECT statement or a natural language question",
				},
				"limit": map[string]any{
					"type":        []string{"integer", "null"},
					"description": "Maximum number of rows to return",
				},
			},
			"required":             []string{"dataset_id", "query_text", "limit"},
			"additionalProperties": false,
		},
		Strict: true,
	},
}

// Executor dispatches function calls onto a processor.
type Executor struct {
	processor *widetable.Processor
}

// NewExecutor wraps a processor for function-call dispatch.
func NewExecutor(p *widetable.Processor) *Executor {
	return &Executor{processor: p}
}

// errResult is the uniform failure shape for callers that parse JSON.
func errResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// Execute runs the named function with JSON-encoded arguments and returns a
// JSON-serializable result. Unknown functions, bad arguments, and operation
// failures all surface as {"error": message}.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) any {
	switch name {
	case "check_dataset_storage":
		return e.checkDatasetStorage(ctx, args)
	case "get_column_recommendations":
		return e.getColumnRecommendations(ctx, args)
	case "query_duckdb_dataset":
		return e.queryDataset(ctx, args)
	default:
		return errResult("unknown function: %s", name)
	}
}

func (e *Executor) checkDatasetStorage(ctx context.Context, args json.RawMessage) any {
	var in struct {
		DatasetID string `json:"dataset_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return errResult("invalid arguments: %v", err)
	}
	if in.DatasetID == "" {
		return errResult("dataset_id is required")
	}
	info, err := e.processor.CheckDatasetStorage(ctx, in.DatasetID)
	if err != nil {
		return errResult("%v", err)
	}
	return info
}

func (e *Executor) getColumnRecommendations(ctx context.Context, args json.RawMessage) any {
	var in struct {
		QueryText string `json:"query_text"`
		Limit     int    `json:"limit"`
		DatasetID string `json:"dataset_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return errResult("invalid arguments: %v", err)
	}
	if in.QueryText == "" {
		return errResult("query_text is required")
	}
	matches, err := e.processor.GetColumnRecommendations(ctx, in.QueryText, in.Limit, in.DatasetID)
	if err != nil {
		return errResult("%v", err)
	}
	if matches == nil {
		matches = []*models.ColumnMatch{}
	}
	return matches
}

func (e *Executor) queryDataset(ctx context.Context, args json.RawMessage) any {
	var in struct {
		DatasetID string `json:"dataset_id"`
		QueryText string `json:"query_text"`
		Limit     int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return errResult("invalid arguments: %v", err)
	}
	if in.DatasetID == "" || in.QueryText == "" {
		return errResult("dataset_id and query_text are required")
	}
	result, err := e.processor.QueryDataset(ctx, in.DatasetID, in.QueryText, in.Limit)
	if err != nil {
		return errResult("%v", err)
	}
	return result
}
