// Package index stores embedded source chunks and serves filtered
// similarity search.
//
// Entries are keyed by (collection, source id, chunk index). A collection is
// a named namespace with a fixed vector dimensionality, typically one per
// project. Similarity is cosine throughout; Search returns matches in
// descending similarity order with ties broken by insertion order.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrDimensionMismatch indicates a collection exists with a different
	// dimensionality than requested, or a vector does not match its
	// collection. Mixing dimensions would silently corrupt similarity
	// comparisons, so this is always surfaced.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnavailable indicates the backing store is unreachable or
	// rejected the operation. Surfaced after a single immediate retry,
	// never masked as an empty result.
	ErrUnavailable = errors.New("vector index unavailable")
)

// Match is one search hit.
type Match struct {
	ChunkID    uuid.UUID
	SourceID   string
	ChunkIndex int
	Text       string
	Similarity float32
}

// Index is the vector index contract shared by the Postgres and Memory
// backends.
type Index interface {
	// EnsureCollection creates the named collection with the given
	// dimensionality if it does not exist. Idempotent; returns
	// ErrDimensionMismatch if it exists with a different dimension.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes the chunks of one source, overwriting entries with
	// the same (source, index) key. After it returns, exactly len(chunks)
	// entries exist for the source: entries at indices >= len(chunks)
	// left over from a longer previous ingestion are removed in the same
	// operation. chunks and vectors must have equal length.
	Upsert(ctx context.Context, collection, sourceID string, chunks []string, vectors [][]float32) error

	// Search returns up to topK entries among the given sources, in
	// descending cosine similarity order. An empty sourceIDs slice
	// short-circuits to an empty result without touching the store.
	Search(ctx context.Context, collection string, vector []float32, sourceIDs []string, topK int) ([]Match, error)

	// DeleteSource removes every entry of one source. The external
	// delete-source flow must call this so vectors do not outlive their
	// source.
	DeleteSource(ctx context.Context, collection, sourceID string) error

	// Count returns the number of entries stored for one source.
	Count(ctx context.Context, collection, sourceID string) (int, error)
}

// nsChunk namespaces deterministic chunk IDs. Derived from a fixed UUID so
// the same (source, index) pair always maps to the same chunk ID across
// processes and re-ingestions.
var nsChunk = uuid.NewSHA1(uuid.NameSpaceOID, []byte("inkbase.chunk"))

// ChunkID returns the stable identifier of a chunk position within a source.
func ChunkID(sourceID string, index int) uuid.UUID {
	return uuid.NewSHA1(nsChunk, fmt.Appendf(nil, "%s:%d", sourceID, index))
}
