package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/paperlens/paperlens-go/internal/corpus"
)

// QdrantConfig holds connection parameters for the Qdrant index backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// Collection is the base collection name; each build creates a fresh
	// versioned collection under this prefix.
	Collection string
	// VectorSize is the embedding dimension stored in the collection.
	VectorSize uint64
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBuilder builds indexes as Qdrant collections. Each rebuild writes a
// fresh versioned collection and only then retires the previous one, so the
// swap is as atomic as the in-process backend's pointer swap: searches hit
// either the old complete collection or the new complete one.
//
// Durability is server-side — Save is a no-op and Load attaches to the
// newest existing versioned collection.
type QdrantBuilder struct {
	client *qdrant.Client
	cfg    *QdrantConfig

	// live is the currently attached collection name, retired on the next
	// successful build.
	live string
}

// NewQdrantBuilder connects to Qdrant and returns a builder.
func NewQdrantBuilder(cfg *QdrantConfig) (*QdrantBuilder, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantBuilder{client: client, cfg: cfg}, nil
}

// Client exposes the underlying gRPC client for readiness probes.
func (b *QdrantBuilder) Client() *qdrant.Client { return b.client }

// Path describes the remote index location for health reporting.
func (b *QdrantBuilder) Path() string {
	return fmt.Sprintf("qdrant://%s:%d/%s", b.cfg.Host, b.cfg.Port, b.cfg.Collection)
}

// collectionName returns a fresh versioned collection name.
func (b *QdrantBuilder) collectionName() string {
	return fmt.Sprintf("%s-%d", b.cfg.Collection, time.Now().UnixNano())
}

// Build creates a fresh collection, upserts every chunk with its embedding
// and payload, then retires the previously live collection.
func (b *QdrantBuilder) Build(ctx context.Context, chunks []*corpus.Chunk) (Index, error) {
	name := b.collectionName()

	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     b.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	dim := 0
	for i, c := range chunks {
		if !c.HasEmbedding() {
			return nil, fmt.Errorf("qdrant: chunk %d of %q has no embedding", c.Meta.ChunkIndex, c.Meta.DocumentID)
		}
		dim = len(c.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":      c.Content,
				"document_id":  c.Meta.DocumentID,
				"section_name": c.Meta.SectionName,
				"chunk_index":  int64(c.Meta.ChunkIndex),
			}),
		})
	}

	if len(points) > 0 {
		if _, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
		}); err != nil {
			// Best-effort cleanup of the unfinished collection.
			_ = b.client.DeleteCollection(ctx, name)
			return nil, fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}

	if b.live != "" && b.live != name {
		if err := b.client.DeleteCollection(ctx, b.live); err != nil {
			// Leaking a stale collection is preferable to failing the build.
			_ = err
		}
	}
	b.live = name

	return &qdrantIndex{client: b.client, collection: name, count: len(chunks), dim: dim}, nil
}

// Load attaches to the newest versioned collection under the configured
// prefix, or returns the empty state when none exists.
func (b *QdrantBuilder) Load(ctx context.Context) (Index, error) {
	names, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: list collections: %w", err)
	}

	prefix := b.cfg.Collection + "-"
	var candidates []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	// Versions are nanosecond timestamps of equal width, so the
	// lexicographic maximum is the newest build.
	sort.Strings(candidates)
	name := candidates[len(candidates)-1]

	count, err := b.client.Count(ctx, &qdrant.CountPoints{CollectionName: name})
	if err != nil {
		return nil, fmt.Errorf("qdrant: count points in %q: %w", name, err)
	}

	b.live = name
	return &qdrantIndex{
		client:     b.client,
		collection: name,
		count:      int(count),
		dim:        int(b.cfg.VectorSize),
	}, nil
}

// Save is a no-op: Qdrant collections are durable server-side.
func (b *QdrantBuilder) Save(_ context.Context, _ Index) error { return nil }

// Close releases the underlying gRPC connection.
func (b *QdrantBuilder) Close() error {
	return b.client.Close()
}

// qdrantIndex is an immutable view over one versioned Qdrant collection.
type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	count      int
	dim        int
}

// Search performs a cosine similarity query and reconstructs chunks from the
// stored payload. Qdrant's cosine scores are already similarities in [-1, 1],
// so no conversion is needed at this boundary.
func (x *qdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	limit := uint64(k)
	scored, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]Result, 0, len(scored))
	for _, p := range scored {
		chunk := &corpus.Chunk{}
		if payload := p.Payload; payload != nil {
			if v, ok := payload["content"]; ok {
				chunk.Content = v.GetStringValue()
			}
			if v, ok := payload["document_id"]; ok {
				chunk.Meta.DocumentID = v.GetStringValue()
			}
			if v, ok := payload["section_name"]; ok {
				chunk.Meta.SectionName = v.GetStringValue()
			}
			if v, ok := payload["chunk_index"]; ok {
				chunk.Meta.ChunkIndex = int(v.GetIntegerValue())
			}
		}
		results = append(results, Result{Chunk: chunk, Score: p.Score})
	}
	return results, nil
}

// Count returns the number of indexed vectors.
func (x *qdrantIndex) Count() int { return x.count }

// Dimension returns the embedding dimension.
func (x *qdrantIndex) Dimension() int { return x.dim }
