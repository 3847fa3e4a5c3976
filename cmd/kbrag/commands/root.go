// Package commands defines all Cobra CLI commands for the kbrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/kbrag-go/internal/audit"
	"github.com/54b3r/kbrag-go/internal/config"
	"github.com/54b3r/kbrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kbrag",
		Short: "kbrag answers questions about your PDFs with retrieval-augmented generation",
		Long: `kbrag turns an uploaded PDF into a searchable knowledge base and answers
questions against it with an LLM.

Each upload becomes a fresh vector collection and the active collection of
its session. Questions embed the query, retrieve the closest chunks and pass
them to the model as context.

Settings come from the environment, a .env file, or a YAML config file
(~/.kbrag/config.yaml). Environment variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log); err != nil {
				return err
			}

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Rebuild so LOG_LEVEL/LOG_FORMAT from the files take effect.
			audit.LogCommandStart(logging.New(), cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.kbrag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
