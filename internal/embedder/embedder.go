// Package embedder converts text into dense vectors via a configurable
// backend (Ollama for local inference, OpenAI-compatible HTTP APIs for
// hosted models). Results are memoized through an LRU cache so repeated
// rebuilds do not re-embed unchanged chunks.
package embedder

import (
	"context"
	"fmt"
)

// Embedder converts a batch of texts into their embedding vectors.
// Implementations must be safe for concurrent use and must return exactly
// one vector per input text, in input order.
type Embedder interface {
	// Embed returns one embedding per text. Failures are reported as
	// *EmbeddingError so callers can distinguish backend faults from
	// their own errors.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingError reports a failure of the embedding backend.
type EmbeddingError struct {
	// Backend identifies the failing backend (e.g. "ollama", "openai").
	Backend string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedder: %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EmbeddingError) Unwrap() error { return e.Err }

// EmbedOne embeds a single text. It is a convenience wrapper over Embed for
// query-side callers that only ever have one input.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &EmbeddingError{Backend: "batch", Err: fmt.Errorf("expected 1 embedding, got %d", len(vecs))}
	}
	return vecs[0], nil
}
