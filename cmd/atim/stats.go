package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show repository statistics",
	Long: `Show open issues, open pull requests, stars, forks and primary language of
the target repository. When the repository cannot be reached the configured
name is shown with zero counts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.controller.RepositoryStats(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan(stats.Name))
		fmt.Printf("  Open issues:  %d\n", stats.OpenIssues)
		fmt.Printf("  Open pulls:   %d\n", stats.OpenPulls)
		fmt.Printf("  Stars:        %d\n", stats.Stars)
		fmt.Printf("  Forks:        %d\n", stats.Forks)
		fmt.Printf("  Language:     %s\n", stats.Language)
		if !stats.Reachable {
			fmt.Printf("\n%s repository unreachable; counts are defaults\n", yellow("⚠"))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Print statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}
