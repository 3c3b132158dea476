package vector

import (
	"strings"

	"github.com/google/uuid"
)

// SanitizeKey makes text safe for use inside a vector ID: printable ASCII
// only, anything outside [A-Za-z0-9_] replaced with an underscore, truncated
// to maxLength. Empty input maps to "unknown"; input with no salvageable
// characters maps to "column".
func SanitizeKey(text string, maxLength int) string {
	if text == "" {
		return "unknown"
	}
	if maxLength <= 0 {
		maxLength = 30
	}

	var b strings.Builder
	for _, r := range text {
		if r > 126 || r < 32 {
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxLength {
		out = out[:maxLength]
	}
	if out == "" {
		out = "column"
	}
	return out
}

// VectorID builds a unique vector ID from a dataset ID and column name. Both
// parts are sanitized; a random 8-character suffix keeps IDs unique even when
// sanitization collapses distinct names onto the same key.
func VectorID(datasetID, columnName string, maxKeyLength int) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return SanitizeKey(datasetID, maxKeyLength) + "_" + SanitizeKey(columnName, maxKeyLength) + "_" + suffix
}
