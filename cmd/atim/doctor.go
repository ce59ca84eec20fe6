package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atim-assistant/atim/internal/config"
	"github.com/atim-assistant/atim/internal/credentials"
	"github.com/atim-assistant/atim/internal/types"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and repository access",
	Long: `Run checks to diagnose common configuration problems.

This command checks for:
- Which credential tiers are configured and which one is used
- Whether the active credential can read the target repository
- Whether the published-issue ledger can be opened
- Whether the extra rule catalog (if any) parses

Exit codes:
  0 - All checks passed
  1 - One or more checks failed`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running atim checks...\n\n")
		if verbose {
			fmt.Printf("%s\n\n", cfg)
		}

		var failures []string
		var warnings []string

		// Check 1: configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		fmt.Printf("  %s Repository: %s\n", green("✓"), cfg.Repository)
		fmt.Printf("  %s API: %s\n", green("✓"), cfg.APIURL)
		if cfg.App.Partial() {
			warnings = append(warnings, "GitHub App credential is incomplete")
			fmt.Printf("  %s GitHub App credential is incomplete (need GITHUB_APP_ID, GITHUB_APP_INSTALLATION_ID and a private key)\n", yellow("⚠"))
		}

		// Check 2: credential tiers
		fmt.Printf("%s Credentials\n", cyan("→"))
		a, err := newApp(ctx, cfg, slog.Default())
		if err != nil {
			failures = append(failures, fmt.Sprintf("Setup failed: %v", err))
			fmt.Printf("  %s %v\n", red("✗"), err)
			finishDoctor(failures, warnings)
			return
		}
		for _, st := range a.resolver.Describe() {
			if st.Configured {
				fmt.Printf("  %s %s configured\n", green("✓"), st.Tier)
			} else {
				fmt.Printf("  %s %s not configured\n", color.New(color.FgHiBlack).Sprint("○"), st.Tier)
			}
		}
		active := a.resolver.Active()
		if active == types.TierNone {
			warnings = append(warnings, "No credential configured; only sample proposals can be shown")
			fmt.Printf("  %s No credential configured\n", yellow("⚠"))
		} else {
			fmt.Printf("  %s Using %s credential\n", green("✓"), active)
		}

		// Check 3: repository access
		fmt.Printf("%s Repository access\n", cyan("→"))
		if active != types.TierNone {
			if err := checkRepository(ctx, a); err != nil {
				failures = append(failures, fmt.Sprintf("Cannot read %s: %v", cfg.Repository, err))
				fmt.Printf("  %s Cannot read repository\n", red("✗"))
				fmt.Printf("    Error: %v\n", err)
			} else {
				fmt.Printf("  %s Repository readable\n", green("✓"))
			}
		} else {
			fmt.Printf("  %s Skipped (no credential)\n", yellow("⚠"))
		}

		// Check 4: ledger
		fmt.Printf("%s Published-issue ledger\n", cyan("→"))
		records, err := a.ledger.ListPublished(ctx, cfg.Repository, 0)
		if err != nil {
			failures = append(failures, fmt.Sprintf("Ledger unreadable: %v", err))
			fmt.Printf("  %s Ledger unreadable: %v\n", red("✗"), err)
		} else {
			fmt.Printf("  %s %s (%d issue(s) recorded for this repository)\n", green("✓"), cfg.DBPath, len(records))
		}

		// Check 5: rules
		fmt.Printf("%s Rule catalog\n", cyan("→"))
		files, repo := a.analyzer.RuleCount()
		fmt.Printf("  %s %d file rules, %d repository rules\n", green("✓"), files, repo)
		if cfg.RulesFile != "" {
			fmt.Printf("    including %s\n", cfg.RulesFile)
		}

		// finishDoctor may exit the process
		a.Close()
		finishDoctor(failures, warnings)
	},
}

func checkRepository(ctx context.Context, a *app) error {
	owner, name, err := config.SplitRepository(cfg.Repository)
	if err != nil {
		return err
	}
	id, err := a.resolver.Resolve(ctx, credentials.ScopeRead)
	if err != nil {
		return err
	}
	_, err = a.client.GetRepository(ctx, id.Token, owner, name)
	return err
}

func finishDoctor(failures, warnings []string) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Println()
	for _, w := range warnings {
		fmt.Printf("%s %s\n", yellow("⚠"), w)
	}
	if len(failures) > 0 {
		for _, f := range failures {
			fmt.Printf("%s %s\n", red("✗"), f)
		}
		os.Exit(1)
	}
	fmt.Printf("%s All checks passed\n", green("✓"))
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
