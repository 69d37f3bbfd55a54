package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperlens/paperlens-go/internal/index"
	"github.com/paperlens/paperlens-go/internal/logging"
)

// NewQueryCmd constructs the `paperlens query` command, which answers a
// question against a previously saved index without starting the server.
func NewQueryCmd() *cobra.Command {
	var k int
	var documentID string

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question against the saved index",
		Long: `Load the saved vector index and answer a question with citation-grounded
generation. Run 'paperlens ingest' first to build the index.

Examples:
  paperlens query "What mechanism replaces recurrence in transformers?"
  paperlens query --k 10 "How is attention computed?"
  paperlens query --document attention-123 "What are the key findings?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			comp, err := buildComponents(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer comp.close()

			comp.manager.LoadOrEmpty(ctx)

			ans, err := comp.engine.QueryWithAnswer(ctx, args[0], k, index.Scope{DocumentID: documentID})
			if err != nil {
				if errors.Is(err, index.ErrIndexNotReady) {
					return fmt.Errorf("query: no saved index found — run 'paperlens ingest' first")
				}
				return fmt.Errorf("query: %w", err)
			}

			fmt.Println(ans.Answer)
			if len(ans.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, src := range ans.Sources {
					fmt.Printf("  [%d] %s (chunk %d, score %.2f)\n",
						i+1, src.Chunk.Meta.DocumentID, src.Chunk.Meta.ChunkIndex, src.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of passages to retrieve (default 5)")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Restrict retrieval to one document ID")

	return cmd
}
