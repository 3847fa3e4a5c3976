package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/store"
	"github.com/54b3r/kbrag-go/internal/tracing"
	"github.com/54b3r/kbrag-go/internal/workflow"
)

// NewAskCmd constructs the `kbrag ask` command, which runs the
// retrieval-augmented workflow in-process and prints the answer.
func NewAskCmd() *cobra.Command {
	var q workflow.Query
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the active knowledge base",
		Long: `Ask a question against the session's active collection.

The question is embedded, the closest chunks are retrieved and passed to the
LLM as context. A custom prompt may use the {query} and {context}
placeholders.

Examples:
  kbrag ask "what does the report conclude?"
  kbrag ask --session research --model gemini-1.5-pro "summarise section 2"
  kbrag ask --prompt $'Q: {query}\nCtx: {context}' "what is X?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush, _ := tracing.Setup()
			defer flush()

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer svc.Close()

			q.Question = strings.Join(args, " ")
			ans, err := svc.workflow.Answer(ctx, q)
			if errors.Is(err, store.ErrNoActiveCollection) {
				return fmt.Errorf("ask: no document ingested for this session; run 'kbrag ingest --file <pdf>' first")
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if showContext {
				if !ans.ContextFound {
					fmt.Fprintln(out, "(no relevant context found)")
				}
				for i, c := range ans.ContextChunks {
					fmt.Fprintf(out, "--- context %d ---\n%s\n", i+1, c)
				}
				fmt.Fprintln(out, "--- answer ---")
			}
			fmt.Fprintln(out, ans.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&q.SessionID, "session", "s", "", "Session whose active collection is searched")
	cmd.Flags().StringVar(&q.Collection, "collection", "", "Search this collection instead of the session's active one")
	cmd.Flags().StringVarP(&q.Model, "model", "m", "", "Override the LLM model for this question")
	cmd.Flags().StringVar(&q.APIKey, "api-key", "", "Use this LLM API key for this question only")
	cmd.Flags().StringVar(&q.CustomPrompt, "prompt", "", "Custom prompt template with {query} and {context} placeholders")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the retrieved chunks before the answer")

	return cmd
}
