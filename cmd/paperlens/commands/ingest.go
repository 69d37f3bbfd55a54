package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/paperlens/paperlens-go/internal/engine"
	"github.com/paperlens/paperlens-go/internal/logging"
)

// NewIngestCmd constructs the `paperlens ingest` command, which parses local
// paper files, builds the vector index over them, and saves it to disk.
func NewIngestCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index local paper files and save the vector index",
		Long: `Parse local paper files (markdown or plain text), chunk them, embed the
chunks, build the vector index, and save it to INDEX_PATH.

The saved index is restored by 'paperlens serve' at startup, so a corpus can
be prepared offline and served later.

Required environment variables:
  MODEL_PROVIDER       Chat/embedding backend: ollama, openai, azure,
                       bedrock, gemini (default: ollama)
  EMBEDDING_*          Embedding-specific overrides (see README)
  INDEX_BACKEND        hnsw (default) or qdrant
  INDEX_PATH           Index file path for the hnsw backend
  QDRANT_*             Connection settings for the qdrant backend

Examples:
  paperlens ingest --file paper1.md --file paper2.md
  INDEX_BACKEND=qdrant paperlens ingest --file attention.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(files) == 0 {
				return fmt.Errorf("ingest: at least one --file is required")
			}

			comp, err := buildComponents(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer comp.close()

			p := newDocumentParser()
			for _, path := range files {
				doc, err := p.Parse(ctx, path)
				if err != nil {
					return fmt.Errorf("ingest: parse %s: %w", path, err)
				}

				documentID := engine.MakeDocumentID(path)
				result, err := comp.engine.Ingest(ctx, documentID, doc)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				if !result.Indexed {
					return fmt.Errorf("ingest: %s: stored but index rebuild failed", path)
				}

				log.Info("document indexed",
					slog.String("file", path),
					slog.String("document_id", documentID),
					slog.Int("chunks", len(doc.Chunks)),
				)
			}

			if err := comp.engine.SaveIndex(ctx); err != nil {
				return fmt.Errorf("ingest: save index: %w", err)
			}

			health := comp.engine.IndexHealth()
			log.Info("ingestion complete",
				slog.Int("documents", len(files)),
				slog.Int("vectors", health.VectorCount),
				slog.String("index_path", health.IndexPath),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Paper file to index (repeatable)")

	return cmd
}
