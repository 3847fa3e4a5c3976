package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/kbrag-go/internal/ingestion"
	"github.com/54b3r/kbrag-go/internal/logging"
)

// NewIngestCmd constructs the `kbrag ingest` command, which runs the
// ingestion pipeline over local PDFs without the HTTP server.
func NewIngestCmd() *cobra.Command {
	var patterns []string
	var session string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest local PDFs into fresh knowledge-base collections",
		Long: `Extract, chunk, embed and store local PDF files.

Every file becomes its own collection. Files are processed in order and the
last successful one becomes the session's active collection, exactly as if
each had been uploaded through POST /kb/upload.

--file accepts doublestar globs ("docs/**/*.pdf") and may be repeated.

Examples:
  kbrag ingest --file report.pdf
  kbrag ingest --file 'papers/**/*.pdf' --session research`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			files, err := expandPatterns(patterns)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(files) == 0 {
				return fmt.Errorf("ingest: no PDF files matched %s", strings.Join(patterns, ", "))
			}

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			var failed int
			for _, path := range files {
				var bar *progressbar.ProgressBar
				progress := func(p ingestion.Progress) {
					if quiet {
						return
					}
					if bar == nil {
						bar = progressbar.NewOptions(p.Total,
							progressbar.OptionSetWriter(os.Stderr),
							progressbar.OptionSetDescription("embedding "+filepath.Base(path)),
							progressbar.OptionShowCount(),
							progressbar.OptionClearOnFinish(),
						)
					}
					_ = bar.Set(p.Done)
				}

				res, err := svc.pipeline.Ingest(ctx, ingestion.Source{Path: path, SessionID: session}, progress)
				if bar != nil {
					_ = bar.Finish()
				}
				if err != nil {
					failed++
					log.Error("ingest failed", slog.String("file", path), slog.Any("error", err))
					fmt.Fprintf(out, "FAIL  %s: %s\n", path, describeIngestError(err))
					continue
				}
				fmt.Fprintf(out, "OK    %s -> %s (%d chunks, session %s)\n",
					path, res.CollectionName, res.ChunkCount, res.SessionID)
			}

			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d files failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&patterns, "file", "f", nil, "PDF path or glob to ingest (repeatable)")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session whose active collection is replaced (default: \"default\")")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the embedding progress bar")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// expandPatterns resolves each pattern with doublestar and returns the
// unique .pdf matches in pattern order. A pattern without glob
// metacharacters must name an existing file.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 && !hasMeta(pattern) {
			return nil, fmt.Errorf("%s: no such file", pattern)
		}
		for _, m := range matches {
			if !strings.EqualFold(filepath.Ext(m), ".pdf") || seen[m] {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	return files, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
