package index

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/embedder"
)

// stubEmbedder returns fixed vectors per text and can be flipped to fail.
type stubEmbedder struct {
	mu   sync.Mutex
	vecs map[string][]float32
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, &embedder.EmbeddingError{Backend: "stub", Err: errors.New("unavailable")}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vecs[t]
		if !ok {
			return nil, errors.New("stub: unknown text " + t)
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

// testCorpus builds a snapshot function over a mutable chunk slice.
type testCorpus struct {
	mu     sync.Mutex
	chunks []*corpus.Chunk
}

func (c *testCorpus) set(chunks []*corpus.Chunk) {
	c.mu.Lock()
	c.chunks = chunks
	c.mu.Unlock()
}

func (c *testCorpus) snapshot() []*corpus.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*corpus.Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// bareChunk builds a chunk whose embedding the manager must fill in.
func bareChunk(docID string, i int, content string) *corpus.Chunk {
	return &corpus.Chunk{
		Content: content,
		Meta:    corpus.ChunkMeta{DocumentID: docID, SectionName: "body", ChunkIndex: i},
	}
}

func newTestManager(t *testing.T, tc *testCorpus, emb embedder.Embedder) *Manager {
	t.Helper()
	b := NewHNSWBuilder(filepath.Join(t.TempDir(), "index.bin"))
	return NewManager(b, emb, tc.snapshot, nil)
}

func TestManager_SearchBeforeRebuildNotReady(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &testCorpus{}, &stubEmbedder{})

	_, err := m.Search(context.Background(), []float32{1, 0, 0}, 3, AllDocuments)
	if !errors.Is(err, ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
	if m.Ready() {
		t.Error("manager should not report ready before a rebuild")
	}
}

func TestManager_RebuildEmbedsAndServes(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vecs: map[string][]float32{
		"alpha": {1, 0, 0},
		"beta":  {0, 1, 0},
	}}
	tc := &testCorpus{}
	tc.set([]*corpus.Chunk{
		bareChunk("doc-a", 0, "alpha"),
		bareChunk("doc-a", 1, "beta"),
	})
	m := newTestManager(t, tc, emb)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0, 0}, 1, AllDocuments)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Content != "alpha" {
		t.Fatalf("expected alpha, got %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Errorf("self-similarity score = %v, expected ~1.0", results[0].Score)
	}

	h := m.Health()
	if h.VectorCount != 2 || !h.IsTrained || h.Dimension != 3 {
		t.Errorf("health = %+v, expected 2 trained vectors of dim 3", h)
	}
	if h.LastRebuildTime.IsZero() {
		t.Error("health should carry the rebuild time")
	}
}

func TestManager_ScopedSearchFiltersOtherDocuments(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vecs: map[string][]float32{
		"a0": {1, 0, 0},
		"a1": {0.9, 0.1, 0},
		"b0": {0.8, 0.2, 0},
	}}
	tc := &testCorpus{}
	tc.set([]*corpus.Chunk{
		bareChunk("doc-a", 0, "a0"),
		bareChunk("doc-a", 1, "a1"),
		bareChunk("doc-b", 0, "b0"),
	})
	m := newTestManager(t, tc, emb)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Globally, doc-a's chunks dominate this query. Scoped to doc-b, only
	// its chunk may appear even though it ranks third corpus-wide.
	results, err := m.Search(ctx, []float32{1, 0, 0}, 2, Document("doc-b"))
	if err != nil {
		t.Fatalf("scoped search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 scoped result, got %d", len(results))
	}
	if results[0].Chunk.Meta.DocumentID != "doc-b" {
		t.Errorf("scoped search leaked chunk from %q", results[0].Chunk.Meta.DocumentID)
	}
}

func TestManager_FailedRebuildKeepsLiveIndex(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vecs: map[string][]float32{"alpha": {1, 0, 0}}}
	tc := &testCorpus{}
	tc.set([]*corpus.Chunk{bareChunk("doc-a", 0, "alpha")})
	m := newTestManager(t, tc, emb)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	// A new un-embedded chunk plus a failing embedder makes the next
	// rebuild fail; the first index must keep serving.
	tc.set([]*corpus.Chunk{
		bareChunk("doc-a", 0, "alpha"),
		bareChunk("doc-b", 0, "omega"),
	})
	emb.setFail(true)

	err := m.Rebuild(ctx)
	var rebuildErr *RebuildError
	if !errors.As(err, &rebuildErr) {
		t.Fatalf("expected *RebuildError, got %v", err)
	}
	var embErr *embedder.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Errorf("rebuild error should wrap the embedding failure, got %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0, 0}, 1, AllDocuments)
	if err != nil {
		t.Fatalf("search after failed rebuild: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Content != "alpha" {
		t.Fatalf("old index not serving after failed rebuild: %+v", results)
	}
	if h := m.Health(); h.VectorCount != 1 {
		t.Errorf("health reflects failed build: %+v", h)
	}
}

// blockingBuilder gates Build so concurrent rebuild requests pile up behind
// one in-flight build.
type blockingBuilder struct {
	entered chan struct{}
	release chan struct{}
	builds  atomic.Int32
	inner   *HNSWBuilder
}

func (b *blockingBuilder) Build(ctx context.Context, chunks []*corpus.Chunk) (Index, error) {
	if b.builds.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return b.inner.Build(ctx, chunks)
}

func (b *blockingBuilder) Load(ctx context.Context) (Index, error)   { return b.inner.Load(ctx) }
func (b *blockingBuilder) Save(ctx context.Context, idx Index) error { return nil }
func (b *blockingBuilder) Path() string                              { return b.inner.Path() }

func TestManager_ConcurrentRebuildsCoalesce(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vecs: map[string][]float32{"alpha": {1, 0, 0}}}
	tc := &testCorpus{}
	tc.set([]*corpus.Chunk{bareChunk("doc-a", 0, "alpha")})

	bb := &blockingBuilder{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		inner:   NewHNSWBuilder(filepath.Join(t.TempDir(), "index.bin")),
	}
	m := NewManager(bb, emb, tc.snapshot, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = m.Rebuild(ctx)
	}()
	<-bb.entered

	// These join the in-flight build rather than starting their own.
	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.Rebuild(ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(bb.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("rebuild %d failed: %v", i, err)
		}
	}
	if got := bb.builds.Load(); got != 1 {
		t.Errorf("expected 1 coalesced build, got %d", got)
	}
	if !m.Ready() {
		t.Error("manager should be ready after coalesced rebuild")
	}
}
