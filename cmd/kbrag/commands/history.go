package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/kbrag-go/internal/logging"
)

// NewHistoryCmd constructs the `kbrag history` command, which lists the
// newest ingestions recorded in the session store.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ingestions across all sessions",
		Long: `List the newest ingestions recorded in the session store, newest first.

Each row is one successful upload or 'kbrag ingest' run: the session it
activated, the collection it created and its chunk count.

Examples:
  kbrag history
  kbrag history -n 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("history: --limit must be positive")
			}

			sessions, closeStore, err := buildSessionStore(logging.Discard())
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer closeStore()

			recent, err := sessions.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(recent) == 0 {
				fmt.Fprintln(out, "no ingestions recorded")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tSESSION\tCOLLECTION\tCHUNKS\tSOURCE")
			for _, ac := range recent {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					ac.UpdatedAt.Local().Format(time.DateTime), ac.SessionID, ac.Collection, ac.ChunkCount, ac.Source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of ingestions to show")

	return cmd
}
