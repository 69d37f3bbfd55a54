// Package retrieval turns natural-language questions into ranked chunk
// results: it embeds the query, delegates similarity search to the index
// manager, and optionally composes the hits with citation-grounded answer
// generation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/embedder"
	"github.com/paperlens/paperlens-go/internal/index"
)

// ErrEmptyQuery is returned when the query text is blank after trimming.
// Degenerate input, not a fault.
var ErrEmptyQuery = errors.New("retrieval: query text is empty")

// DefaultK is the number of chunks returned when the caller does not ask
// for a specific count.
const DefaultK = 5

// NoAnswerMessage is the deterministic response when retrieval finds no
// relevant chunks. The generator is never invoked with empty context.
const NoAnswerMessage = "No answer available: no relevant passages were found in the corpus for this question."

// Answer is a generated response grounded in retrieved chunks.
type Answer struct {
	// Answer is the generated text.
	Answer string `json:"answer"`
	// Sources are the chunks the answer was grounded in, ranked by
	// similarity to the question.
	Sources []index.Result `json:"sources"`
}

// Generator produces citation-grounded answers from retrieved chunks.
// Implemented by the llm package.
type Generator interface {
	AnswerWithCitations(ctx context.Context, question string, chunks []*corpus.Chunk) (string, error)
}

// Searcher is the index surface retrieval depends on. Implemented by
// *index.Manager.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int, scope index.Scope) ([]index.Result, error)
}

// Engine embeds queries and ranks chunks against the live index.
type Engine struct {
	embedder embedder.Embedder
	searcher Searcher
	gen      Generator
}

// NewEngine constructs a retrieval engine. gen may be nil when answer
// composition is not needed (QueryWithAnswer will then fail).
func NewEngine(emb embedder.Embedder, s Searcher, gen Generator) *Engine {
	return &Engine{embedder: emb, searcher: s, gen: gen}
}

// Query embeds text and returns the k most similar chunks within scope.
// Returns ErrEmptyQuery for blank text and index.ErrIndexNotReady when no
// index is live. k <= 0 selects DefaultK.
func (e *Engine) Query(ctx context.Context, text string, k int, scope index.Scope) ([]index.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultK
	}

	vec, err := embedder.EmbedOne(ctx, e.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	return e.searcher.Search(ctx, vec, k, scope)
}

// QueryWithAnswer retrieves chunks for text and asks the generator for a
// citation-grounded answer over them. Zero retrieved chunks short-circuits
// to NoAnswerMessage without a generator call.
func (e *Engine) QueryWithAnswer(ctx context.Context, text string, k int, scope index.Scope) (*Answer, error) {
	results, err := e.Query(ctx, text, k, scope)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Answer{Answer: NoAnswerMessage, Sources: []index.Result{}}, nil
	}
	if e.gen == nil {
		return nil, errors.New("retrieval: no answer generator configured")
	}

	chunks := make([]*corpus.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	answer, err := e.gen.AnswerWithCitations(ctx, text, chunks)
	if err != nil {
		return nil, fmt.Errorf("retrieval: generate answer: %w", err)
	}
	return &Answer{Answer: answer, Sources: results}, nil
}
