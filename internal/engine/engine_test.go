package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/paperlens/paperlens-go/internal/attribution"
	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/index"
	"github.com/paperlens/paperlens-go/internal/parser"
	"github.com/paperlens/paperlens-go/internal/relate"
	"github.com/paperlens/paperlens-go/internal/retrieval"
)

// hashEmbedder derives a deterministic unit-ish vector from each text so any
// corpus can be indexed without canned fixtures.
type hashEmbedder struct {
	fail bool
	mu   sync.Mutex
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	fail := h.fail
	h.mu.Unlock()
	if fail {
		return nil, errors.New("hashEmbedder: unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		f := fnv.New32a()
		f.Write([]byte(t))
		sum := f.Sum32()
		out[i] = []float32{
			float32(sum%97) + 1,
			float32(sum%89) + 1,
			float32(sum%83) + 1,
		}
	}
	return out, nil
}

// fakeLM is a canned LanguageModel.
type fakeLM struct {
	topics    []string
	topicsErr error
	summary   string
	synthesis string
	explain   string
}

func (f *fakeLM) GenerateSummary(context.Context, string, string, map[string]string) (string, error) {
	return f.summary, nil
}

func (f *fakeLM) ExtractKeyTopics(context.Context, string) ([]string, error) {
	return f.topics, f.topicsErr
}

func (f *fakeLM) ExplainText(context.Context, string, string, string, string) (string, error) {
	return f.explain, nil
}

func (f *fakeLM) SynthesizePapers(context.Context, []relate.Paper, string) (string, error) {
	return f.synthesis, nil
}

func newTestEngine(t *testing.T, emb *hashEmbedder, lm *fakeLM) *Engine {
	t.Helper()
	store := corpus.NewStore()
	builder := index.NewHNSWBuilder(filepath.Join(t.TempDir(), "index.bin"))
	manager := index.NewManager(builder, emb, store.AllChunks, nil)
	ret := retrieval.NewEngine(emb, manager, nil)
	scorer := attribution.NewScorer(store, emb)
	agg := relate.NewAggregator(store)
	return New(store, manager, ret, scorer, agg, lm)
}

func parsedDoc(chunks ...string) *parser.Document {
	return &parser.Document{
		Chunks:         chunks,
		Sections:       map[string]string{"body": strings.Join(chunks, "\n")},
		Metadata:       map[string]string{"title": "Test Paper"},
		ChunkingMethod: "paragraph-merge",
	}
}

func TestIngest_StoresTopicsAndServesSearch(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{topics: []string{"testing"}})
	ctx := context.Background()

	res, err := e.Ingest(ctx, "doc-1", parsedDoc("alpha chunk", "beta chunk"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Indexed {
		t.Error("ingest should report indexed on a successful rebuild")
	}

	doc, err := e.Document("doc-1")
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if len(doc.Topics) != 1 || doc.Topics[0] != "testing" {
		t.Errorf("topics = %v", doc.Topics)
	}

	results, err := e.Query(ctx, "alpha chunk", 1, index.AllDocuments)
	if err != nil {
		t.Fatalf("query after ingest: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestIngest_TopicExtractionFailureDegrades(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{topicsErr: errors.New("model down")})

	res, err := e.Ingest(context.Background(), "doc-1", parsedDoc("alpha"))
	if err != nil {
		t.Fatalf("ingest must survive topic failure, got %v", err)
	}
	if len(res.Document.Topics) != 0 {
		t.Errorf("topics = %v, expected none", res.Document.Topics)
	}
}

func TestIngest_RebuildFailureStillStores(t *testing.T) {
	t.Parallel()

	emb := &hashEmbedder{fail: true}
	e := newTestEngine(t, emb, &fakeLM{})

	res, err := e.Ingest(context.Background(), "doc-1", parsedDoc("alpha"))
	if err != nil {
		t.Fatalf("ingest must survive rebuild failure, got %v", err)
	}
	if res.Indexed {
		t.Error("result should report the failed rebuild")
	}
	if _, err := e.Document("doc-1"); err != nil {
		t.Errorf("document must be stored despite rebuild failure: %v", err)
	}
}

func TestDelete_UnknownDocument(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{})
	if err := e.Delete(context.Background(), "ghost"); !errors.Is(err, corpus.ErrNotFound) {
		t.Fatalf("expected corpus.ErrNotFound, got %v", err)
	}
}

func TestDelete_RemovesFromIndex(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{})
	ctx := context.Background()

	if _, err := e.Ingest(ctx, "doc-1", parsedDoc("alpha")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := e.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The rebuilt index over the now-empty corpus is not searchable.
	_, err := e.Query(ctx, "alpha", 1, index.AllDocuments)
	if !errors.Is(err, index.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady after deleting the only document, got %v", err)
	}
	if h := e.IndexHealth(); h.VectorCount != 0 || h.IsTrained {
		t.Errorf("health after delete = %+v", h)
	}
}

func TestConcurrentIngestsConverge(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{})
	ctx := context.Background()

	const docs = 8
	var wg sync.WaitGroup
	for i := 0; i < docs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			if _, err := e.Ingest(ctx, id, parsedDoc("chunk one of "+id, "chunk two of "+id)); err != nil {
				t.Errorf("ingest %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	// The mutation lock serializes {add, rebuild}, so the last rebuild saw
	// the full corpus.
	if h := e.IndexHealth(); h.VectorCount != docs*2 {
		t.Errorf("vector count = %d, expected %d", h.VectorCount, docs*2)
	}
	if got := len(e.Documents()); got != docs {
		t.Errorf("corpus has %d documents, expected %d", got, docs)
	}
}

func TestSummarize_NoContent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{summary: "s"})
	ctx := context.Background()

	if _, err := e.Ingest(ctx, "doc-1", parsedDoc("alpha")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := e.Summarize(ctx, "doc-1", "student"); err != nil {
		t.Errorf("summarize with content: %v", err)
	}
	if _, err := e.Summarize(ctx, "ghost", "student"); !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSynthesize_PassesThroughNoValidDocuments(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &hashEmbedder{}, &fakeLM{synthesis: "joint story"})
	ctx := context.Background()

	if _, err := e.Synthesize(ctx, []string{"ghost"}, ""); !errors.Is(err, relate.ErrNoValidDocuments) {
		t.Fatalf("expected ErrNoValidDocuments, got %v", err)
	}

	if _, err := e.Ingest(ctx, "doc-1", parsedDoc("alpha")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	res, err := e.Synthesize(ctx, []string{"doc-1"}, "")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Synthesis != "joint story" || res.Type != "general" || len(res.Papers) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestMakeDocumentID(t *testing.T) {
	t.Parallel()

	id1 := MakeDocumentID("My Paper (final).pdf")
	if !strings.HasPrefix(id1, "My-Paper--final--") {
		t.Errorf("id = %q, expected sanitized filename prefix", id1)
	}
	id2 := MakeDocumentID("My Paper (final).pdf")
	if id1 == id2 {
		t.Error("re-uploading the same file must produce a fresh ID")
	}
}
