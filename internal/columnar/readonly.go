package columnar

import (
	"regexp"
	"strings"

	"github.com/sapdo/widetable/internal/apperrors"
)

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// validateReadOnly rejects any statement that is not a single SELECT (or
// WITH ... SELECT). Snapshots are immutable; DDL and DML never reach the engine.
func validateReadOnly(sqlText string) error {
	stmt := stripLeadingComments(strings.TrimSpace(sqlText))
	if stmt == "" {
		return apperrors.Queryf("empty query")
	}

	first := strings.ToUpper(firstWord(strings.TrimLeft(stmt, "( \t\n\r")))
	switch first {
	case "SELECT", "WITH":
	default:
		return apperrors.Queryf("only read-only SELECT queries are allowed, got %s", first)
	}

	if hasMultipleStatements(stmt) {
		return apperrors.Queryf("multiple statements are not allowed")
	}
	return nil
}

// stripLeadingComments removes leading -- line comments and /* */ block comments.
func stripLeadingComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "--") {
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
			continue
		}
		if strings.HasPrefix(s, "/*") {
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
			continue
		}
		return s
	}
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' {
			return s[:i]
		}
	}
	return s
}

// hasMultipleStatements reports whether a semicolon outside quotes is followed
// by anything other than whitespace.
func hasMultipleStatements(s string) bool {
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				if strings.TrimSpace(s[i+1:]) != "" {
					return true
				}
			}
		}
	}
	return false
}
