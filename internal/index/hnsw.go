package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coder/hnsw"

	"github.com/paperlens/paperlens-go/internal/corpus"
)

// HNSW tuning parameters. M and EfSearch follow the library's recommended
// defaults for corpora in the thousands-of-chunks range.
const (
	hnswM        = 16
	hnswEfSearch = 20
	// hnswMl is the level generation factor, 1/ln(M).
	hnswMl = 0.25
)

// HNSWBuilder builds in-process HNSW indexes and persists them as a single
// gob-encoded file at Path. Chunks (content, metadata, embedding) are stored
// inside the file, so a loaded index is searchable before any re-ingestion.
type HNSWBuilder struct {
	// path is the on-disk index file location.
	path string
}

// NewHNSWBuilder constructs an HNSWBuilder persisting to path.
func NewHNSWBuilder(path string) *HNSWBuilder {
	return &HNSWBuilder{path: path}
}

// Path returns the on-disk index file location.
func (b *HNSWBuilder) Path() string { return b.path }

// hnswIndex is an immutable HNSW graph over chunk embeddings. Graph keys are
// chunk ordinals into the chunks slice.
type hnswIndex struct {
	graph  *hnsw.Graph[int]
	chunks []*corpus.Chunk
	dim    int
}

// newGraph returns an empty cosine-distance HNSW graph with our tuning.
func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = hnswMl
	return g
}

// Build constructs a fresh index from chunks. Every chunk must already carry
// its embedding and all embeddings must share one dimension.
func (b *HNSWBuilder) Build(ctx context.Context, chunks []*corpus.Chunk) (Index, error) {
	idx := &hnswIndex{graph: newGraph(), chunks: chunks}

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("hnsw: build cancelled: %w", err)
		}
		if !c.HasEmbedding() {
			return nil, fmt.Errorf("hnsw: chunk %d of %q has no embedding", c.Meta.ChunkIndex, c.Meta.DocumentID)
		}
		if idx.dim == 0 {
			idx.dim = len(c.Embedding)
		} else if len(c.Embedding) != idx.dim {
			return nil, fmt.Errorf("hnsw: dimension mismatch: chunk %d of %q has %d, index has %d",
				c.Meta.ChunkIndex, c.Meta.DocumentID, len(c.Embedding), idx.dim)
		}
		idx.graph.Add(hnsw.MakeNode(i, c.Embedding))
	}

	return idx, nil
}

// Search returns the k nearest chunks by cosine similarity.
//
// Score conversion happens here, once, at the index boundary: the graph's
// native metric is cosine *distance* (1 - cosine similarity), so results are
// reported as similarity = 1 - distance, restoring the [-1, 1] range.
func (x *hnswIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hnsw: search cancelled: %w", err)
	}
	if len(x.chunks) == 0 {
		return []Result{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("hnsw: query dimension %d does not match index dimension %d", len(query), x.dim)
	}

	nodes := x.graph.Search(query, k)

	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		results = append(results, Result{
			Chunk: x.chunks[node.Key],
			Score: 1 - x.graph.Distance(query, node.Value),
		})
	}
	return results, nil
}

// Count returns the number of indexed vectors.
func (x *hnswIndex) Count() int { return len(x.chunks) }

// Dimension returns the embedding dimension.
func (x *hnswIndex) Dimension() int { return x.dim }

// savedChunk is the gob persistence form of one indexed chunk.
type savedChunk struct {
	Content   string
	Meta      corpus.ChunkMeta
	Embedding []float32
}

// savedIndex is the gob persistence envelope for an HNSW index. The graph
// itself is not serialized; it is rebuilt from the stored embeddings on load,
// which keeps the file format independent of the graph library's internals.
type savedIndex struct {
	Dimension int
	Chunks    []savedChunk
}

// Save writes idx to the builder's path atomically (temp file + rename).
func (b *HNSWBuilder) Save(_ context.Context, idx Index) error {
	x, ok := idx.(*hnswIndex)
	if !ok {
		return fmt.Errorf("hnsw: cannot save foreign index type %T", idx)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("hnsw: create index directory: %w", err)
	}

	saved := savedIndex{Dimension: x.dim, Chunks: make([]savedChunk, len(x.chunks))}
	for i, c := range x.chunks {
		saved.Chunks[i] = savedChunk{Content: c.Content, Meta: c.Meta, Embedding: c.Embedding}
	}

	tmp := b.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("hnsw: create index file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&saved); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("hnsw: encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("hnsw: close index file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("hnsw: rename index file: %w", err)
	}
	return nil
}

// Load restores the index from the builder's path. A missing file is the
// empty state (nil, nil); a corrupt or unreadable file is an error the
// caller may choose to treat as empty.
func (b *HNSWBuilder) Load(ctx context.Context) (Index, error) {
	f, err := os.Open(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hnsw: open index file: %w", err)
	}
	defer f.Close()

	var saved savedIndex
	if err := gob.NewDecoder(f).Decode(&saved); err != nil {
		return nil, fmt.Errorf("hnsw: decode index file %s: %w", b.path, err)
	}

	chunks := make([]*corpus.Chunk, len(saved.Chunks))
	for i, sc := range saved.Chunks {
		chunks[i] = &corpus.Chunk{Content: sc.Content, Meta: sc.Meta, Embedding: sc.Embedding}
	}
	return b.Build(ctx, chunks)
}
