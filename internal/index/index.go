// Package index owns the vector index over corpus chunks: building it from a
// corpus snapshot, persisting and loading it, swapping it atomically so
// readers never observe a half-built index, and serving similarity search.
//
// Exactly one index instance is live at a time. Mutating workflows trigger a
// full rebuild from the corpus snapshot; concurrent rebuild requests are
// coalesced rather than queued. A failed build never replaces a good index.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paperlens/paperlens-go/internal/corpus"
)

// ErrIndexNotReady is returned by Search when no index has been built or
// loaded yet. It is recoverable: ingesting a document triggers a rebuild.
var ErrIndexNotReady = errors.New("index: no live index — ingest a document or wait for startup load")

// RebuildError wraps a failure to construct a new index. When it is
// returned, the previously live index (if any) is still intact and serving.
type RebuildError struct {
	// Err is the underlying failure (embedding error, backend error, …).
	Err error
}

// Error implements the error interface.
func (e *RebuildError) Error() string { return fmt.Sprintf("index: rebuild failed: %v", e.Err) }

// Unwrap returns the underlying cause.
func (e *RebuildError) Unwrap() error { return e.Err }

// Result is one search hit: a chunk and its similarity score.
type Result struct {
	// Chunk is the matched chunk. For the in-process backend this aliases
	// the indexed chunk; remote backends reconstruct it from stored payload.
	Chunk *corpus.Chunk `json:"chunk"`

	// Score is the cosine similarity of the chunk to the query, in [-1, 1].
	// Scores are only comparable between results of the same index instance.
	Score float32 `json:"score"`
}

// Scope restricts a search to a subset of the corpus.
type Scope struct {
	// DocumentID, when non-empty, restricts results to chunks of that
	// document. Empty means the whole corpus.
	DocumentID string
}

// AllDocuments is the unrestricted scope.
var AllDocuments = Scope{}

// Document returns a scope restricted to one document.
func Document(id string) Scope { return Scope{DocumentID: id} }

// Index is a built, immutable searchable structure over chunk embeddings.
// Implementations must be safe for concurrent Search calls; they are never
// mutated after construction — rebuilds produce a fresh instance.
type Index interface {
	// Search returns the k nearest chunks to the query embedding, ranked by
	// descending cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Count returns the number of indexed vectors.
	Count() int

	// Dimension returns the embedding dimension, or 0 when empty.
	Dimension() int
}

// Builder constructs, persists, and restores Index instances for one
// backend (in-process HNSW or a remote Qdrant collection).
type Builder interface {
	// Build constructs a fresh index from chunks. Every chunk must already
	// carry its embedding; the Manager guarantees this.
	Build(ctx context.Context, chunks []*corpus.Chunk) (Index, error)

	// Load restores a previously persisted index. It returns (nil, nil)
	// when nothing is persisted — an empty state, not an error.
	Load(ctx context.Context) (Index, error)

	// Save persists idx durably. Backends with server-side durability may
	// make this a no-op.
	Save(ctx context.Context, idx Index) error

	// Path describes where the index is persisted, for health reporting.
	Path() string
}

// Health is a read-only diagnostic snapshot of the live index. It is always
// obtainable: with no live index the counts are zero and IsTrained is false,
// because observability must not require a ready index.
type Health struct {
	// VectorCount is the number of indexed vectors (0 when no index).
	VectorCount int `json:"vector_count"`
	// Dimension is the embedding dimension (0 when no index).
	Dimension int `json:"dimension"`
	// IsTrained reports whether a usable index is live.
	IsTrained bool `json:"is_trained"`
	// IndexPath is where the index is persisted.
	IndexPath string `json:"index_path"`
	// LastRebuildTime is when the live index was built or loaded.
	// Zero when no rebuild has happened this process lifetime.
	LastRebuildTime time.Time `json:"last_rebuild_time"`
}
