// Package columnar bridges CSV input to queryable columnar snapshots. Files are
// streamed in row-count chunks, per-column types are inferred from samples and
// widened across chunks, and the result is written as one immutable parquet
// file per dataset, queryable through DuckDB.
package columnar

import (
	"strconv"
	"strings"
	"time"

	"github.com/sapdo/widetable/internal/models"
)

// typeUnknown marks a column for which no non-empty value has been seen yet.
// It widens to any concrete type and falls back to text if it survives the
// whole scan.
const typeUnknown models.ColumnType = ""

var boolLiterals = map[string]bool{
	"true": true, "false": true,
	"t": true, "f": true,
	"yes": true, "no": true,
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// inferValueType returns the narrowest type the single value parses as.
// Empty values carry no type information.
func inferValueType(s string) models.ColumnType {
	s = strings.TrimSpace(s)
	if s == "" {
		return typeUnknown
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.TypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return models.TypeFloat
	}
	if boolLiterals[strings.ToLower(s)] {
		return models.TypeBoolean
	}
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return models.TypeTimestamp
		}
	}
	return models.TypeText
}

// widenType merges two inferred types. The merge is pure and associative:
// unknown is the identity, integer widens to float, and any other conflict
// widens to text. Widening never narrows.
func widenType(a, b models.ColumnType) models.ColumnType {
	if a == b {
		return a
	}
	if a == typeUnknown {
		return b
	}
	if b == typeUnknown {
		return a
	}
	if (a == models.TypeInteger && b == models.TypeFloat) || (a == models.TypeFloat && b == models.TypeInteger) {
		return models.TypeFloat
	}
	return models.TypeText
}

// inferColumnType folds inferValueType over a sample of values.
func inferColumnType(samples []string) models.ColumnType {
	t := typeUnknown
	for _, s := range samples {
		t = widenType(t, inferValueType(s))
		if t == models.TypeText {
			break
		}
	}
	return t
}

// mergeSchemas widens each column of the accumulated schema with the chunk
// schema. Both slices must have the same length.
func mergeSchemas(acc, chunk []models.ColumnType) []models.ColumnType {
	out := make([]models.ColumnType, len(acc))
	for i := range acc {
		out[i] = widenType(acc[i], chunk[i])
	}
	return out
}

// finalizeTypes replaces any still-unknown column type (all values empty) with text.
func finalizeTypes(types []models.ColumnType) []models.ColumnType {
	out := make([]models.ColumnType, len(types))
	for i, t := range types {
		if t == typeUnknown {
			t = models.TypeText
		}
		out[i] = t
	}
	return out
}

// normalizeName makes a raw header cell safe as both a SQL identifier and a
// vector-store key: non-ASCII and special characters become underscores, a
// leading digit gets a "c_" prefix, and an empty result becomes "column".
func normalizeName(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '/':
			b.WriteByte('_')
		default:
			// Anything else, including non-ASCII, maps to underscore.
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	if name == "" {
		return "column"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "c_" + name
	}
	return name
}

// disambiguateNames normalizes all header names and resolves collisions
// deterministically: the first occurrence keeps the bare name, later
// duplicates get _2, _3, ... in ordinal order.
func disambiguateNames(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, r := range raw {
		name := normalizeName(r)
		if n, ok := seen[name]; ok {
			base := name
			for {
				n++
				candidate := base + "_" + strconv.Itoa(n)
				if _, taken := seen[candidate]; !taken {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		seen[name] = 1
		out[i] = name
	}
	return out
}
