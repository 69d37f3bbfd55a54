package index

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/embedder"
	"github.com/paperlens/paperlens-go/internal/logging"
)

const (
	// DefaultOversample is the multiplier applied to k for scoped searches:
	// the index is asked for k*DefaultOversample candidates corpus-wide, then
	// filtered down to the scope. Larger corpora with small documents may
	// need a higher value to fill k scoped results.
	DefaultOversample = 4

	// embedBatchSize is how many chunk texts go to the embedder per request
	// during a rebuild.
	embedBatchSize = 32

	// embedConcurrency bounds in-flight embedding batches per rebuild.
	embedConcurrency = 4
)

// liveState is the atomically swapped unit: one built index plus its
// build/load timestamp.
type liveState struct {
	idx     Index
	builtAt time.Time
}

// Manager owns the single live index. It serves searches lock-free off an
// atomic pointer, rebuilds from a corpus snapshot on demand, and coalesces
// concurrent rebuild requests so at most one build runs at a time.
//
// The snapshot function is called inside the coalesced flight, so every
// rebuild reflects the corpus as of when its build actually starts — callers
// that joined a flight already in progress get that flight's result, and the
// workflow layer retriggers if it needs a newer snapshot.
type Manager struct {
	builder  Builder
	embedder embedder.Embedder

	// snapshot returns the chunks to index, in a stable order.
	snapshot func() []*corpus.Chunk

	// oversample is the scoped-search candidate multiplier.
	oversample int

	live   atomic.Pointer[liveState]
	flight singleflight.Group
}

// ManagerOptions tunes a Manager. Zero values select defaults.
type ManagerOptions struct {
	// Oversample overrides DefaultOversample when > 0.
	Oversample int
}

// NewManager constructs a Manager with no live index. The snapshot function
// must return chunks in a stable order and must be safe to call from a
// rebuild goroutine; the workflow layer serializes corpus mutation against
// rebuilds, so a snapshot taken inside a flight is internally consistent.
func NewManager(b Builder, emb embedder.Embedder, snapshot func() []*corpus.Chunk, opts *ManagerOptions) *Manager {
	oversample := DefaultOversample
	if opts != nil && opts.Oversample > 0 {
		oversample = opts.Oversample
	}
	return &Manager{
		builder:    b,
		embedder:   emb,
		snapshot:   snapshot,
		oversample: oversample,
	}
}

// LoadOrEmpty attempts to restore a persisted index. Failure to load is not
// fatal: the manager stays in the empty state and the error is logged, since
// the next ingest rebuilds from the corpus anyway.
func (m *Manager) LoadOrEmpty(ctx context.Context) {
	logger := logging.FromContext(ctx)

	idx, err := m.builder.Load(ctx)
	if err != nil {
		logger.Warn("index load failed, starting empty", "path", m.builder.Path(), "error", err)
		return
	}
	if idx == nil {
		logger.Info("no persisted index, starting empty", "path", m.builder.Path())
		return
	}

	m.live.Store(&liveState{idx: idx, builtAt: time.Now()})
	logger.Info("index loaded",
		"path", m.builder.Path(),
		"vectors", idx.Count(),
		"dimension", idx.Dimension())
}

// Rebuild constructs a fresh index from the current corpus snapshot and
// swaps it live. Concurrent callers are coalesced onto one build and all
// receive its outcome. On failure the previously live index (if any) keeps
// serving and a *RebuildError is returned.
//
// Rebuild does not persist; call Save explicitly (typically at shutdown).
func (m *Manager) Rebuild(ctx context.Context) error {
	_, err, _ := m.flight.Do("rebuild", func() (any, error) {
		return nil, m.rebuild(ctx)
	})
	if err != nil {
		return &RebuildError{Err: err}
	}
	return nil
}

// rebuild is the single-flight body: snapshot, embed, build, swap.
func (m *Manager) rebuild(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	start := time.Now()

	chunks := m.snapshot()
	if err := m.embedMissing(ctx, chunks); err != nil {
		return err
	}

	idx, err := m.builder.Build(ctx, chunks)
	if err != nil {
		return err
	}

	m.live.Store(&liveState{idx: idx, builtAt: time.Now()})
	logger.Info("index rebuilt",
		"vectors", idx.Count(),
		"dimension", idx.Dimension(),
		"duration", time.Since(start))
	return nil
}

// embedMissing fills in embeddings for chunks that do not carry one yet,
// batching texts to the embedder with bounded concurrency. Chunks that
// already have an embedding (from ingestion or a loaded index) are skipped.
func (m *Manager) embedMissing(ctx context.Context, chunks []*corpus.Chunk) error {
	var missing []*corpus.Chunk
	for _, c := range chunks {
		if !c.HasEmbedding() {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for startIdx := 0; startIdx < len(missing); startIdx += embedBatchSize {
		batch := missing[startIdx:min(startIdx+embedBatchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := m.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("index: embedder returned %d vectors for %d texts", len(vecs), len(batch))
			}
			for i, c := range batch {
				c.Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// Search embeds-free similarity search: the caller supplies the query
// embedding. With a non-empty scope the index is oversampled corpus-wide and
// filtered, so scoped results come from the same ranking as global ones.
// Returns ErrIndexNotReady when no index with vectors is live.
func (m *Manager) Search(ctx context.Context, query []float32, k int, scope Scope) ([]Result, error) {
	state := m.live.Load()
	if state == nil || state.idx.Count() == 0 {
		return nil, ErrIndexNotReady
	}

	if scope.DocumentID == "" {
		return state.idx.Search(ctx, query, k)
	}

	candidates, err := state.idx.Search(ctx, query, k*m.oversample)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, k)
	for _, r := range candidates {
		if r.Chunk.Meta.DocumentID != scope.DocumentID {
			continue
		}
		results = append(results, r)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Ready reports whether a searchable index is live.
func (m *Manager) Ready() bool {
	state := m.live.Load()
	return state != nil && state.idx.Count() > 0
}

// Health returns a diagnostic snapshot. It never fails: with no live index
// it reports zero counts and IsTrained false.
func (m *Manager) Health() Health {
	h := Health{IndexPath: m.builder.Path()}
	state := m.live.Load()
	if state == nil {
		return h
	}
	h.VectorCount = state.idx.Count()
	h.Dimension = state.idx.Dimension()
	h.IsTrained = state.idx.Count() > 0
	h.LastRebuildTime = state.builtAt
	return h
}

// Save persists the live index, if any. Persistence is explicit rather than
// per-rebuild: bursty ingestion would otherwise rewrite the index file once
// per document.
func (m *Manager) Save(ctx context.Context) error {
	state := m.live.Load()
	if state == nil {
		return nil
	}
	return m.builder.Save(ctx, state.idx)
}
