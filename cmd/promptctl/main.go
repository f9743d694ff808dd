// Command promptctl runs prompt templates over JSONL datasets from the
// command line, without the server or a database.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/promptfactory/internal/logging"
)

func main() {
	// A missing .env is fine; run files usually reference exported variables.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		verbose   bool
		logFormat string
	)

	root := &cobra.Command{
		Use:           "promptctl",
		Short:         "Run prompt templates over JSONL datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.SetupWriter(cmd.ErrOrStderr(), level, logFormat)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every call")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(newRunCmd(), newRenderCmd(), newValidateCmd())
	return root
}
