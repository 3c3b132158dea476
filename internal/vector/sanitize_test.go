package vector

import (
	"strings"
	"testing"

	"github.com/sapdo/widetable/internal/models"
)

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"First Name", "First_Name"},
		{"Temp (°C)®", "Temp__C_"},
		{"", "unknown"},
		{"日本語", "column"},
		{"a-b.c", "a_b_c"},
	}
	for _, c := range cases {
		if got := SanitizeKey(c.in, 30); got != c.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeKeyTruncates(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := SanitizeKey(long, 30)
	if len(got) != 30 {
		t.Errorf("len = %d, want 30", len(got))
	}
}

func TestVectorIDSafeAndUnique(t *testing.T) {
	a := VectorID("ds-1", "Temp (°C)®", 30)
	b := VectorID("ds-1", "Temp (°C)®", 30)
	if a == b {
		t.Error("two IDs for the same column should differ")
	}
	for _, id := range []string{a, b} {
		for _, r := range id {
			if r > 126 || r < 32 {
				t.Fatalf("non-ASCII rune %q in vector ID %q", r, id)
			}
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_') {
				t.Fatalf("unsafe rune %q in vector ID %q", r, id)
			}
		}
	}
}

func TestColumnText(t *testing.T) {
	cases := []struct {
		col  models.Column
		want string
	}{
		{
			models.Column{Name: "revenue", Type: models.TypeFloat, Description: "total order value"},
			"Column revenue: total order value (Type: float)",
		},
		{
			models.Column{Name: "customer_ltv", Type: models.TypeFloat},
			"Column customer_ltv: customer ltv (Type: float)",
		},
		{
			models.Column{Name: "id", Type: models.TypeInteger},
			"Column id (Type: integer)",
		},
	}
	for _, c := range cases {
		if got := ColumnText(&c.col); got != c.want {
			t.Errorf("ColumnText(%s) = %q, want %q", c.col.Name, got, c.want)
		}
	}
}
