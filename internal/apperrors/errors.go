// Package apperrors defines the error taxonomy shared across the pipeline.
// Errors carry a Kind so boundaries (HTTP handlers, the function-calling
// surface) can map them without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindIngestion marks malformed, empty, or oversized input. User-correctable.
	KindIngestion Kind = iota + 1
	// KindQuery marks invalid SQL or execution failure against a snapshot. The
	// underlying engine message is preserved verbatim so an LLM caller can
	// self-correct.
	KindQuery
	// KindNotFound marks a reference to a nonexistent dataset or column,
	// distinct from an empty result.
	KindNotFound
	// KindIndexing marks an embedding or vector-backend failure. Not fatal to
	// ingestion; semantic search degrades instead.
	KindIndexing
	// KindConfiguration marks missing or invalid backend settings. Raised
	// eagerly at startup, never deferred to first use.
	KindConfiguration
)

// String returns the taxonomy name for the kind.
func (k Kind) String() string {
	switch k {
	case KindIngestion:
		return "ingestion"
	case KindQuery:
		return "query"
	case KindNotFound:
		return "not_found"
	case KindIndexing:
		return "indexing"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a kind-classified error. It wraps an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Ingestionf returns a KindIngestion error.
func Ingestionf(format string, args ...any) error {
	return &Error{Kind: KindIngestion, Msg: fmt.Sprintf(format, args...)}
}

// WrapIngestion wraps err as a KindIngestion error.
func WrapIngestion(err error, msg string) error {
	return &Error{Kind: KindIngestion, Msg: msg, Err: err}
}

// Queryf returns a KindQuery error.
func Queryf(format string, args ...any) error {
	return &Error{Kind: KindQuery, Msg: fmt.Sprintf(format, args...)}
}

// WrapQuery wraps err as a KindQuery error, keeping the engine message reachable
// via Unwrap and visible in Error().
func WrapQuery(err error, msg string) error {
	return &Error{Kind: KindQuery, Msg: msg, Err: err}
}

// NotFound returns a KindNotFound error for the given resource and identifier.
func NotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s not found: %s", resource, id)}
}

// Indexingf returns a KindIndexing error.
func Indexingf(format string, args ...any) error {
	return &Error{Kind: KindIndexing, Msg: fmt.Sprintf(format, args...)}
}

// WrapIndexing wraps err as a KindIndexing error.
func WrapIndexing(err error, msg string) error {
	return &Error{Kind: KindIndexing, Msg: msg, Err: err}
}

// Configurationf returns a KindConfiguration error.
func Configurationf(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }
