package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/kbrag-go/internal/version"
)

// NewVersionCmd constructs the `kbrag version` subcommand.
// It prints the binary version, git commit, and build date injected at
// build time via -ldflags.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kbrag version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
