package utils

import "testing"

func TestTruncate(t *testing.T) {
	cases := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"hello", 0, "hello"},
		{"hello", -1, "hello"},
		{"", 5, ""},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.maxLen); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.maxLen, got, c.want)
		}
	}
}
