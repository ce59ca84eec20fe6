package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/atim-assistant/atim/internal/repl"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Start an interactive review shell",
	Long: `Start an interactive shell for triaging proposals one analysis pass at a time.

Proposals can be addressed by their number in the last listing or by id.
Type 'help' in the shell for available commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := repl.New(&repl.Config{
			Controller: a.controller,
			Repository: cfg.Repository,
		})
		if err != nil {
			return err
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
