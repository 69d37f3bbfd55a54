package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paperlens/paperlens-go/internal/attribution"
	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/embedder"
	"github.com/paperlens/paperlens-go/internal/engine"
	"github.com/paperlens/paperlens-go/internal/index"
	"github.com/paperlens/paperlens-go/internal/llm"
	"github.com/paperlens/paperlens-go/internal/parser"
	"github.com/paperlens/paperlens-go/internal/provider"
	"github.com/paperlens/paperlens-go/internal/relate"
	"github.com/paperlens/paperlens-go/internal/retrieval"
)

// getEnvOrDefault returns the env var value or a fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or a fallback when unset or
// malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// components holds the wired subsystem graph shared by the CLI commands.
type components struct {
	store    *corpus.Store
	manager  *index.Manager
	engine   *engine.Engine
	embedder embedder.Embedder
	// qdrant is non-nil when INDEX_BACKEND=qdrant; used for readiness probes
	// and connection teardown.
	qdrant *index.QdrantBuilder
	// backend is the resolved embedding backend name, for probe labels.
	backend string
}

// close releases backend connections.
func (c *components) close() {
	if c.qdrant != nil {
		_ = c.qdrant.Close()
	}
}

// newDocumentParser returns the parser used for uploaded and local files.
func newDocumentParser() parser.Parser {
	return parser.NewTextParser()
}

// defaultIndexPath resolves the default on-disk index location,
// ~/.paperlens/index.gob, creating the directory if needed.
func defaultIndexPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".paperlens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.gob"), nil
}

// buildIndexBuilder constructs the index backend selected by INDEX_BACKEND:
// "hnsw" (default, in-process with gob persistence) or "qdrant" (remote).
func buildIndexBuilder(log *slog.Logger) (index.Builder, *index.QdrantBuilder, error) {
	backend := getEnvOrDefault("INDEX_BACKEND", "hnsw")

	switch backend {
	case "hnsw":
		path := os.Getenv("INDEX_PATH")
		if path == "" {
			var err error
			path, err = defaultIndexPath()
			if err != nil {
				return nil, nil, fmt.Errorf("index: %w", err)
			}
		}
		log.Info("index backend: hnsw", slog.String("path", path))
		return index.NewHNSWBuilder(path), nil, nil

	case "qdrant":
		embBackend := embedder.ResolveBackend()
		qb, err := index.NewQdrantBuilder(&index.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "paperlens-chunks"),
			VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("index: %w", err)
		}
		log.Info("index backend: qdrant", slog.String("path", qb.Path()))
		return qb, qb, nil

	default:
		return nil, nil, fmt.Errorf("index: unknown INDEX_BACKEND %q (want hnsw or qdrant)", backend)
	}
}

// buildComponents wires the full subsystem graph from the environment:
// embedder, chat model, corpus store, index manager, retrieval, attribution,
// relatedness, and the engine facade.
func buildComponents(ctx context.Context, log *slog.Logger) (*components, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embBackend := embedder.ResolveBackend()
	log.Info("embedder initialised", slog.String("provider", embBackend))

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

	llmClient := llm.NewClient(chatModel, getEnvInt("MODEL_CONTEXT_TOKENS", 0))

	store := corpus.NewStore()

	builder, qdrantBuilder, err := buildIndexBuilder(log)
	if err != nil {
		return nil, err
	}

	manager := index.NewManager(builder, emb, store.AllChunks, &index.ManagerOptions{
		Oversample: getEnvInt("INDEX_OVERSAMPLE", 0),
	})

	ret := retrieval.NewEngine(emb, manager, llmClient)
	scorer := attribution.NewScorer(store, emb)
	agg := relate.NewAggregator(store)
	eng := engine.New(store, manager, ret, scorer, agg, llmClient)

	return &components{
		store:    store,
		manager:  manager,
		engine:   eng,
		embedder: emb,
		qdrant:   qdrantBuilder,
		backend:  embBackend,
	}, nil
}
