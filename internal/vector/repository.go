package vector

import (
	"context"
	"errors"
	"fmt"
)

// Metadata is the payload stored next to each article vector.
type Metadata struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// SourceOr returns the record's source, or def when none was stored.
func (m Metadata) SourceOr(def string) string {
	if m.Source == "" {
		return def
	}
	return m.Source
}

// Record is a single indexed article.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a single hit from a similarity search. Higher scores are more
// similar.
type Match struct {
	ID    string
	Score float32
}

// Index provides vector storage, similarity search and bulk metadata lookup.
type Index interface {
	// Query returns up to topK matches in descending score order. Metadata is
	// not loaded.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	// Fetch returns metadata for the given ids. Unknown ids are absent from
	// the result rather than reported as errors.
	Fetch(ctx context.Context, ids []string) (map[string]Metadata, error)
	// Upsert inserts or replaces records.
	Upsert(ctx context.Context, records []Record) error
	// Delete removes records by id.
	Delete(ctx context.Context, ids []string) error
	// Dimensions reports the vector size the index was built with.
	Dimensions(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}

// Provisioner is implemented by indexes that can create their backing
// collection on demand.
type Provisioner interface {
	EnsureCollection(ctx context.Context, dims int) error
}

// ErrDimensionMismatch reports that a vector's length disagrees with the
// index configuration. It is a configuration error and never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DimensionError carries the expected and actual vector sizes.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%v: index expects %d, got %d", ErrDimensionMismatch, e.Expected, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }
