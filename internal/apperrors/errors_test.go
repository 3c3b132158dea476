package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{Ingestionf("empty file"), KindIngestion},
		{Queryf("syntax error"), KindQuery},
		{NotFound("dataset", "abc"), KindNotFound},
		{Indexingf("backend unreachable"), KindIndexing},
		{Configurationf("missing key"), KindConfiguration},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.kind {
			t.Errorf("KindOf(%v) = %v, want %v", c.err, got, c.kind)
		}
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain error should have no kind")
	}
	if KindOf(nil) != 0 {
		t.Error("nil error should have no kind")
	}
}

func TestWrappedKindSurvivesFmtErrorf(t *testing.T) {
	inner := NotFound("dataset", "x")
	outer := fmt.Errorf("lookup failed: %w", inner)
	if !IsNotFound(outer) {
		t.Error("kind should be discoverable through wrapping")
	}
}

func TestWrapQueryPreservesEngineMessage(t *testing.T) {
	engine := errors.New(`Parser Error: syntax error at or near "FORM"`)
	err := WrapQuery(engine, "query failed")
	if !errors.Is(err, engine) {
		t.Error("engine error should be reachable via Unwrap")
	}
	if got := err.Error(); got != `query failed: Parser Error: syntax error at or near "FORM"` {
		t.Errorf("unexpected message: %s", got)
	}
}
