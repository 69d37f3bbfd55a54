// Package attribution explains generated sentences: given a sentence and a
// document, it finds the source chunks most similar to the sentence so a
// user can audit a summary claim against the underlying text.
package attribution

import (
	"context"
	"fmt"
	"sort"

	"github.com/viterin/vek/vek32"

	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/embedder"
)

// topEvidence is how many chunks back a sentence.
const topEvidence = 3

// Evidence is one supporting chunk with its similarity to the sentence.
type Evidence struct {
	// Chunk is the supporting source chunk.
	Chunk *corpus.Chunk `json:"chunk"`
	// Score is the cosine similarity of the chunk to the sentence.
	Score float32 `json:"score"`
}

// Result is the evidence set behind one sentence of one document.
type Result struct {
	// Sentence is the attributed sentence, as given.
	Sentence string `json:"sentence"`
	// DocumentID is the document searched for evidence.
	DocumentID string `json:"document_id"`
	// Evidence holds up to three chunks, descending by similarity. Ties
	// keep chunk order, so equal-scoring evidence reads in document order.
	Evidence []Evidence `json:"evidence"`
	// Confidence is the arithmetic mean of the evidence scores; 0 when the
	// document has no chunks.
	Confidence float32 `json:"confidence"`
}

// Scorer computes sentence attribution over the corpus.
type Scorer struct {
	store    *corpus.Store
	embedder embedder.Embedder
}

// NewScorer constructs a Scorer.
func NewScorer(store *corpus.Store, emb embedder.Embedder) *Scorer {
	return &Scorer{store: store, embedder: emb}
}

// Score embeds sentence once, scores it against every chunk of documentID,
// and returns the top evidence with an aggregate confidence. Returns
// corpus.ErrNotFound for an unknown document. A document with zero chunks
// yields empty evidence and zero confidence, not an error.
func (s *Scorer) Score(ctx context.Context, documentID, sentence string) (*Result, error) {
	doc, err := s.store.Get(documentID)
	if err != nil {
		return nil, err
	}

	res := &Result{Sentence: sentence, DocumentID: documentID, Evidence: []Evidence{}}
	if len(doc.Chunks) == 0 {
		return res, nil
	}

	target, err := embedder.EmbedOne(ctx, s.embedder, sentence)
	if err != nil {
		return nil, fmt.Errorf("attribution: embed sentence: %w", err)
	}

	vecs, err := s.chunkEmbeddings(ctx, doc.Chunks)
	if err != nil {
		return nil, err
	}

	evidence := make([]Evidence, len(doc.Chunks))
	for i, c := range doc.Chunks {
		evidence[i] = Evidence{Chunk: c, Score: vek32.CosineSimilarity(target, vecs[i])}
	}
	// Stable: equal scores keep their chunk-index order.
	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Score > evidence[j].Score
	})
	if len(evidence) > topEvidence {
		evidence = evidence[:topEvidence]
	}

	var sum float32
	for _, ev := range evidence {
		sum += ev.Score
	}
	res.Evidence = evidence
	res.Confidence = sum / float32(len(evidence))
	return res, nil
}

// chunkEmbeddings returns one vector per chunk, reusing embeddings already
// cached on the chunks and batching the rest through the embedder. Freshly
// computed vectors are not written back to the chunks: attribution is a read
// path and must not race a concurrent rebuild filling the same field.
func (s *Scorer) chunkEmbeddings(ctx context.Context, chunks []*corpus.Chunk) ([][]float32, error) {
	vecs := make([][]float32, len(chunks))
	var missingIdx []int
	var missingTexts []string
	for i, c := range chunks {
		if c.HasEmbedding() {
			vecs[i] = c.Embedding
			continue
		}
		missingIdx = append(missingIdx, i)
		missingTexts = append(missingTexts, c.Content)
	}
	if len(missingTexts) == 0 {
		return vecs, nil
	}

	fresh, err := s.embedder.Embed(ctx, missingTexts)
	if err != nil {
		return nil, fmt.Errorf("attribution: embed chunks: %w", err)
	}
	if len(fresh) != len(missingTexts) {
		return nil, fmt.Errorf("attribution: embedder returned %d vectors for %d texts", len(fresh), len(missingTexts))
	}
	for j, i := range missingIdx {
		vecs[i] = fresh[j]
	}
	return vecs, nil
}
