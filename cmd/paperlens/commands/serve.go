package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/paperlens/paperlens-go/internal/embedder"
	"github.com/paperlens/paperlens-go/internal/logging"
	"github.com/paperlens/paperlens-go/internal/server"
	"github.com/paperlens/paperlens-go/internal/startup"
	"github.com/paperlens/paperlens-go/internal/store"
	"github.com/paperlens/paperlens-go/internal/tracing"
)

// NewServeCmd constructs the `paperlens serve` command, which starts the
// HTTP API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PaperLens HTTP API server",
		Long: `Start the PaperLens HTTP server on localhost.

The server exposes a REST API for document upload, semantic search,
citation-grounded question answering, sentence attribution, related-paper
discovery, and cross-paper synthesis.

On startup the server restores a previously saved index in the background;
queries return 503 until an index is live. The index is persisted on
graceful shutdown.

Examples:
  paperlens serve
  paperlens serve --port 9090
  MODEL_PROVIDER=openai INDEX_BACKEND=qdrant paperlens serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			comp, err := buildComponents(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer comp.close()

			// Background startup: restore the persisted index, then warm up
			// the embedding backend. Each step is bounded; a step that
			// overruns is abandoned and the server starts degraded.
			boot := startup.NewOrchestrator(
				func(ctx context.Context) error {
					comp.manager.LoadOrEmpty(ctx)
					return nil
				},
				func(ctx context.Context) error {
					_, err := embedder.EmbedOne(ctx, comp.embedder, "warm-up")
					return err
				},
				nil,
			)
			boot.Run(ctx)

			// Open query history store. PAPERLENS_HISTORY_DB overrides the
			// default path (~/.paperlens/history.db). Set to "disabled" to
			// turn history off.
			var historyStore store.HistoryStore
			dbPath := os.Getenv("PAPERLENS_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via PAPERLENS_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewEmbedderPinger(comp.embedder, comp.backend),
			}
			if comp.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(comp.qdrant.Client()))
			}

			srv, err := server.New(comp.engine, newDocumentParser(), &server.Config{
				Host:      host,
				Port:      port,
				UploadDir: getEnvOrDefault("PAPERLENS_UPLOAD_DIR", ""),
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("PAPERLENS_API_KEY"),
			}, &server.Options{
				Boot:    boot,
				History: historyStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			serveErr := srv.Start(ctx)

			// Persist the index on the way out. Saves are explicit rather
			// than per-rebuild, so shutdown is the durability point.
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := comp.engine.SaveIndex(saveCtx); err != nil {
				log.Warn("index save on shutdown failed", slog.Any("error", err))
			} else {
				log.Info("index saved")
			}

			return serveErr
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
