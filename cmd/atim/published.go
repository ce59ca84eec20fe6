package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atim-assistant/atim/internal/storage"
)

var publishedCmd = &cobra.Command{
	Use:   "published",
	Short: "List issues recorded in the local ledger",
	Long: `List the issues this installation has published for the target repository,
newest first. The ledger is what prevents the same defect from being filed twice.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return listPublished(cmd.Context(), limit)
	},
}

func listPublished(ctx context.Context, limit int) error {
	ledger, err := storage.NewLedger(ctx, &storage.Config{Path: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	records, err := ledger.ListPublished(ctx, cfg.Repository, limit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("Published issues for %s", cfg.Repository)))
	if len(records) == 0 {
		fmt.Printf("  %s\n\n", gray("Nothing published yet"))
		return nil
	}

	for _, rec := range records {
		fmt.Printf("  %s %s\n", green(fmt.Sprintf("#%-5d", rec.IssueNumber)), rec.Title)
		where := rec.FilePath
		if where == "" {
			where = "repository-wide"
		}
		fmt.Printf("         %s\n", gray(fmt.Sprintf("%s  %s via %s credential",
			where, rec.PublishedAt.Local().Format("2006-01-02 15:04"), rec.CredentialTier)))
	}
	fmt.Println()
	return nil
}

func init() {
	publishedCmd.Flags().IntP("limit", "n", 20, "Maximum number of records to show (0 for all)")
	rootCmd.AddCommand(publishedCmd)
}
