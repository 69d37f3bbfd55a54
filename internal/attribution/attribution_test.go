package attribution

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paperlens/paperlens-go/internal/corpus"
)

// vecEmbedder maps texts to fixed vectors and counts embedded texts.
type vecEmbedder struct {
	vecs     map[string][]float32
	embedded int
}

func (v *vecEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := v.vecs[t]
		if !ok {
			return nil, errors.New("vecEmbedder: unknown text " + t)
		}
		out[i] = vec
		v.embedded++
	}
	return out, nil
}

// unitAt returns a 2-d unit vector whose cosine against {1,0} is cos.
func unitAt(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func storeWithDoc(t *testing.T, doc *corpus.DocumentRecord) *corpus.Store {
	t.Helper()
	s := corpus.NewStore()
	s.Add(doc)
	return s
}

func docWithChunks(id string, contents ...string) *corpus.DocumentRecord {
	doc := &corpus.DocumentRecord{ID: id}
	for i, c := range contents {
		doc.Chunks = append(doc.Chunks, &corpus.Chunk{
			Content: c,
			Meta:    corpus.ChunkMeta{DocumentID: id, SectionName: "body", ChunkIndex: i},
		})
	}
	return doc
}

func TestScore_TopThreeMeanConfidence(t *testing.T) {
	t.Parallel()

	emb := &vecEmbedder{vecs: map[string][]float32{
		"the claim": {1, 0},
		"strong":    unitAt(0.9),
		"good":      unitAt(0.8),
		"weak":      unitAt(0.4),
		"noise":     unitAt(0.1),
	}}
	store := storeWithDoc(t, docWithChunks("paper-1", "strong", "good", "weak", "noise"))
	scorer := NewScorer(store, emb)

	res, err := scorer.Score(context.Background(), "paper-1", "the claim")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(res.Evidence) != 3 {
		t.Fatalf("expected top 3 evidence, got %d", len(res.Evidence))
	}
	if res.Evidence[0].Chunk.Content != "strong" || res.Evidence[2].Chunk.Content != "weak" {
		t.Errorf("evidence order wrong: %q .. %q", res.Evidence[0].Chunk.Content, res.Evidence[2].Chunk.Content)
	}
	// mean(0.9, 0.8, 0.4) = 0.7
	if math.Abs(float64(res.Confidence)-0.7) > 1e-3 {
		t.Errorf("confidence = %v, expected ~0.7", res.Confidence)
	}
}

func TestScore_FewerThanThreeChunks(t *testing.T) {
	t.Parallel()

	emb := &vecEmbedder{vecs: map[string][]float32{
		"the claim": {1, 0},
		"only":      unitAt(0.6),
	}}
	store := storeWithDoc(t, docWithChunks("paper-1", "only"))
	scorer := NewScorer(store, emb)

	res, err := scorer.Score(context.Background(), "paper-1", "the claim")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(res.Evidence) != 1 {
		t.Fatalf("expected 1 evidence chunk, got %d", len(res.Evidence))
	}
	if math.Abs(float64(res.Confidence)-0.6) > 1e-3 {
		t.Errorf("confidence = %v, expected ~0.6", res.Confidence)
	}
}

func TestScore_EmptyDocumentZeroConfidence(t *testing.T) {
	t.Parallel()

	emb := &vecEmbedder{vecs: map[string][]float32{}}
	store := storeWithDoc(t, docWithChunks("paper-1"))
	scorer := NewScorer(store, emb)

	res, err := scorer.Score(context.Background(), "paper-1", "anything")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(res.Evidence) != 0 || res.Confidence != 0 {
		t.Errorf("expected empty evidence and zero confidence, got %+v", res)
	}
	if emb.embedded != 0 {
		t.Errorf("embedder should not be called for an empty document")
	}
}

func TestScore_UnknownDocument(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(corpus.NewStore(), &vecEmbedder{})
	_, err := scorer.Score(context.Background(), "missing", "anything")
	if !errors.Is(err, corpus.ErrNotFound) {
		t.Fatalf("expected corpus.ErrNotFound, got %v", err)
	}
}

func TestScore_TiesKeepChunkOrder(t *testing.T) {
	t.Parallel()

	// Two chunks with identical vectors score identically; the earlier
	// chunk index must come first.
	same := unitAt(0.5)
	emb := &vecEmbedder{vecs: map[string][]float32{
		"the claim": {1, 0},
		"first":     same,
		"second":    same,
	}}
	store := storeWithDoc(t, docWithChunks("paper-1", "first", "second"))
	scorer := NewScorer(store, emb)

	res, err := scorer.Score(context.Background(), "paper-1", "the claim")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if res.Evidence[0].Chunk.Content != "first" || res.Evidence[1].Chunk.Content != "second" {
		t.Errorf("tie-break broke chunk order: %q then %q",
			res.Evidence[0].Chunk.Content, res.Evidence[1].Chunk.Content)
	}
}

func TestScore_ReusesCachedEmbeddings(t *testing.T) {
	t.Parallel()

	emb := &vecEmbedder{vecs: map[string][]float32{
		"the claim": {1, 0},
		"fresh":     unitAt(0.3),
	}}
	doc := docWithChunks("paper-1", "cached", "fresh")
	doc.Chunks[0].Embedding = unitAt(0.9)
	store := storeWithDoc(t, doc)
	scorer := NewScorer(store, emb)

	res, err := scorer.Score(context.Background(), "paper-1", "the claim")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// Sentence + the one un-embedded chunk; the cached chunk never hits
	// the embedder (its text is not even known to the stub).
	if emb.embedded != 2 {
		t.Errorf("embedder saw %d texts, expected 2", emb.embedded)
	}
	if res.Evidence[0].Chunk.Content != "cached" {
		t.Errorf("cached chunk should rank first, got %q", res.Evidence[0].Chunk.Content)
	}
}
