package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/atim-assistant/atim/internal/config"
)

var (
	verbose   bool
	envFile   string
	repoFlag  string
	dbPath    string
	rulesFile string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "atim",
	Short: "Review detected code issues and publish them to GitHub",
	Long: `Atim scans a GitHub repository for known defect patterns, turns each match
into an issue proposal, and publishes approved proposals as GitHub issues.

Credentials are read from the environment (or a .env file), highest priority
first: GitHub App installation, ATIM_GITHUB_TOKEN, GITHUB_TOKEN. Without any
credential, or when the repository is unreachable, a sample proposal set is shown.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}

		loaded, err := config.FromEnv()
		if err != nil {
			return err
		}
		if repoFlag != "" {
			loaded.Repository = repoFlag
		}
		if dbPath != "" {
			loaded.DBPath = dbPath
		}
		if rulesFile != "" {
			loaded.RulesFile = rulesFile
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	rootCmd.PersistentFlags().StringVarP(&repoFlag, "repo", "r", "", "Target repository (owner/name), overrides GITHUB_REPO")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Published-issue ledger path, overrides ATIM_DB_PATH")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "Extra YAML rule catalog, overrides ATIM_RULES_FILE")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
