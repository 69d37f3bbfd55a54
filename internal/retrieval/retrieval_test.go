package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/index"
)

// fixedEmbedder returns one vector for every text.
type fixedEmbedder struct {
	vec   []float32
	calls int
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// stubSearcher returns canned results and records the requested scope.
type stubSearcher struct {
	results   []index.Result
	err       error
	lastK     int
	lastScope index.Scope
}

func (s *stubSearcher) Search(_ context.Context, _ []float32, k int, scope index.Scope) ([]index.Result, error) {
	s.lastK = k
	s.lastScope = scope
	return s.results, s.err
}

// stubGenerator returns a canned answer and records the chunks it saw.
type stubGenerator struct {
	answer string
	err    error
	calls  int
	chunks []*corpus.Chunk
}

func (g *stubGenerator) AnswerWithCitations(_ context.Context, _ string, chunks []*corpus.Chunk) (string, error) {
	g.calls++
	g.chunks = chunks
	return g.answer, g.err
}

func result(docID, content string, score float32) index.Result {
	return index.Result{
		Chunk: &corpus.Chunk{Content: content, Meta: corpus.ChunkMeta{DocumentID: docID}},
		Score: score,
	}
}

func TestQuery_BlankTextRejected(t *testing.T) {
	t.Parallel()

	e := NewEngine(&fixedEmbedder{vec: []float32{1}}, &stubSearcher{}, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := e.Query(context.Background(), text, 3, index.AllDocuments); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Query(%q): expected ErrEmptyQuery, got %v", text, err)
		}
	}
}

func TestQuery_DelegatesScopeAndDefaultK(t *testing.T) {
	t.Parallel()

	s := &stubSearcher{results: []index.Result{result("doc-a", "alpha", 0.9)}}
	e := NewEngine(&fixedEmbedder{vec: []float32{1}}, s, nil)

	results, err := e.Query(context.Background(), "what is alpha?", 0, index.Document("doc-a"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if s.lastK != DefaultK {
		t.Errorf("k = %d, expected DefaultK (%d)", s.lastK, DefaultK)
	}
	if s.lastScope.DocumentID != "doc-a" {
		t.Errorf("scope = %+v, expected doc-a", s.lastScope)
	}
}

func TestQuery_IndexNotReadyPropagates(t *testing.T) {
	t.Parallel()

	s := &stubSearcher{err: index.ErrIndexNotReady}
	e := NewEngine(&fixedEmbedder{vec: []float32{1}}, s, nil)

	_, err := e.Query(context.Background(), "anything", 3, index.AllDocuments)
	if !errors.Is(err, index.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestQueryWithAnswer_NoHitsSkipsGenerator(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{answer: "should not be used"}
	e := NewEngine(&fixedEmbedder{vec: []float32{1}}, &stubSearcher{results: []index.Result{}}, gen)

	ans, err := e.QueryWithAnswer(context.Background(), "unanswerable", 3, index.AllDocuments)
	if err != nil {
		t.Fatalf("query with answer: %v", err)
	}
	if ans.Answer != NoAnswerMessage {
		t.Errorf("answer = %q, expected the deterministic no-answer message", ans.Answer)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(ans.Sources))
	}
	if gen.calls != 0 {
		t.Errorf("generator invoked %d times with empty context", gen.calls)
	}
}

func TestQueryWithAnswer_GroundsAnswerInHits(t *testing.T) {
	t.Parallel()

	s := &stubSearcher{results: []index.Result{
		result("doc-a", "alpha", 0.9),
		result("doc-b", "beta", 0.7),
	}}
	gen := &stubGenerator{answer: "Alpha is covered in doc-a [1]."}
	e := NewEngine(&fixedEmbedder{vec: []float32{1}}, s, gen)

	ans, err := e.QueryWithAnswer(context.Background(), "what is alpha?", 2, index.AllDocuments)
	if err != nil {
		t.Fatalf("query with answer: %v", err)
	}
	if ans.Answer != gen.answer {
		t.Errorf("answer = %q", ans.Answer)
	}
	if len(ans.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(ans.Sources))
	}
	if len(gen.chunks) != 2 || gen.chunks[0].Content != "alpha" {
		t.Errorf("generator saw wrong chunks: %+v", gen.chunks)
	}
}

func TestQueryWithAnswer_GeneratorFailureSurfaced(t *testing.T) {
	t.Parallel()

	s := &stubSearcher{results: []index.Result{result("doc-a", "alpha", 0.9)}}
	gen := &stubGenerator{err: errors.New("model unavailable")}
	e := NewEngine(&fixedEmbedder{vec: []float32{1}}, s, gen)

	if _, err := e.QueryWithAnswer(context.Background(), "what is alpha?", 1, index.AllDocuments); err == nil {
		t.Fatal("expected generator failure to surface")
	}
}
