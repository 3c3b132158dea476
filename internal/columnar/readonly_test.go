package columnar

import (
	"testing"

	"github.com/sapdo/widetable/internal/apperrors"
)

func TestValidateReadOnlyAllowsSelects(t *testing.T) {
	allowed := []string{
		"SELECT * FROM t",
		"select count(*) from t",
		"  WITH x AS (SELECT 1) SELECT * FROM x",
		"-- comment\nSELECT 1",
		"/* block */ SELECT 1",
		"SELECT 1;",
		"(SELECT 1)",
	}
	for _, q := range allowed {
		if err := validateReadOnly(q); err != nil {
			t.Errorf("validateReadOnly(%q) = %v, want nil", q, err)
		}
	}
}

func TestValidateReadOnlyRejectsWrites(t *testing.T) {
	rejected := []string{
		"DROP TABLE x",
		"DELETE FROM t",
		"INSERT INTO t VALUES (1)",
		"UPDATE t SET a = 1",
		"CREATE TABLE t (a int)",
		"ALTER TABLE t ADD COLUMN b int",
		"SELECT 1; DROP TABLE t",
		"",
		"-- only a comment",
	}
	for _, q := range rejected {
		err := validateReadOnly(q)
		if err == nil {
			t.Errorf("validateReadOnly(%q) = nil, want QueryError", q)
			continue
		}
		if !apperrors.Is(err, apperrors.KindQuery) {
			t.Errorf("validateReadOnly(%q) kind = %v, want query", q, err)
		}
	}
}

func TestValidateReadOnlyIgnoresSemicolonsInStrings(t *testing.T) {
	q := "SELECT * FROM t WHERE a = 'x; DROP TABLE t'"
	if err := validateReadOnly(q); err != nil {
		t.Errorf("semicolon inside string literal should be allowed: %v", err)
	}
}
