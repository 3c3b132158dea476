package models

// QueryRows holds tabular query output: column names in result order plus row
// values. Values are JSON-serializable scalars (string, float64, bool, nil).
type QueryRows struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// ColumnMatch is a single semantic (or keyword) search hit for a column,
// ordered by descending score.
type ColumnMatch struct {
	DatasetID   string  `json:"dataset_id"`
	ColumnName  string  `json:"column_name"`
	ColumnType  string  `json:"column_type,omitempty"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// Query result types returned by QueryDataset.
const (
	QueryTypeSQL     = "sql"
	QueryTypeNatural = "natural_language"
	QueryTypeSample  = "sample"
)

// QueryResult is the unified response for both SQL and natural-language queries.
type QueryResult struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	// SQL is the executed statement; for natural-language queries this is the
	// derived statement, empty when the sample fallback was used.
	SQL             string         `json:"sql_query,omitempty"`
	RelevantColumns []*ColumnMatch `json:"relevant_columns,omitempty"`
	Results         *QueryRows     `json:"results"`
	Message         string         `json:"message,omitempty"`
}
