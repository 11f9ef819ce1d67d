// Command evaluate scores answers with an LLM judge and summarises the
// resulting CSV tables.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "evaluate",
		Short:        "Evaluate chat answers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")
	root.AddCommand(newRunCmd(), newMergeCmd(), newBinsCmd())
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
