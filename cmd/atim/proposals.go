package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atim-assistant/atim/internal/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Analyze the repository and list issue proposals",
	Long: `Scan the target repository, run the rule catalog over every matching file,
and print the resulting proposals. Proposals already published (according to
the local ledger) are shown as published with their issue number.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		minSeverity, _ := cmd.Flags().GetString("min-severity")
		asJSON, _ := cmd.Flags().GetBool("json")

		var status types.Status
		if statusFilter != "" {
			status = types.Status(strings.ToLower(statusFilter))
			if !status.IsValid() {
				return fmt.Errorf("invalid status %q", statusFilter)
			}
		}
		var floor types.Severity
		if minSeverity != "" {
			s, err := types.ParseSeverity(minSeverity)
			if err != nil {
				return err
			}
			floor = s
		}

		a, err := newApp(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		all, err := a.controller.ListProposals(cmd.Context())
		if err != nil {
			return err
		}

		var shown []*types.IssueProposal
		for _, p := range all {
			if status != "" && p.Status != status {
				continue
			}
			if floor != "" && !p.Severity.AtLeast(floor) {
				continue
			}
			shown = append(shown, p)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if shown == nil {
				shown = []*types.IssueProposal{}
			}
			return enc.Encode(shown)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n", cyan(fmt.Sprintf("Issue proposals for %s", cfg.Repository)))
		if summary, ok := a.controller.Summary(); ok && summary.Sample {
			fmt.Printf("%s repository unavailable; showing sample proposals\n", yellow("⚠"))
		}
		fmt.Println()

		if len(shown) == 0 {
			fmt.Printf("  %s\n\n", gray("No proposals"))
			return nil
		}
		for _, p := range shown {
			printProposalLine(p)
		}
		fmt.Printf("\n%d proposal(s)\n\n", len(shown))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <proposal-id>",
	Short: "Show one proposal in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.controller.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		bold := color.New(color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n", bold(p.Title))
		fmt.Printf("%s %s\n", gray("ID:       "), p.ID)
		fmt.Printf("%s %s\n", gray("Severity: "), severityColor(p.Severity)(string(p.Severity)))
		fmt.Printf("%s %s\n", gray("Category: "), p.Category)
		fmt.Printf("%s %s\n", gray("Status:   "), p.Status)
		if loc := p.Location(); loc != "" {
			fmt.Printf("%s %s\n", gray("Location: "), loc)
		}
		if len(p.Labels) > 0 {
			fmt.Printf("%s %s\n", gray("Labels:   "), strings.Join(p.Labels, ", "))
		}
		if p.RemoteIssueNumber != nil {
			fmt.Printf("%s #%d %s\n", gray("Issue:    "), *p.RemoteIssueNumber, p.RemoteIssueURL)
		}
		fmt.Printf("\n%s\n", p.Description)
		if p.SuggestedFix != "" {
			fmt.Printf("\n%s\n%s\n", bold("Suggested fix:"), p.SuggestedFix)
		}
		fmt.Println()
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Approve a proposal and publish it as a GitHub issue",
	Long: `Approve a pending proposal and create the corresponding GitHub issue.

Approving a proposal whose title and file were already published returns the
existing issue instead of creating a second one. If publishing fails the
proposal stays pending and can be approved again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.controller.Approve(cmd.Context(), args[0])
		if err != nil {
			return explainPublishError(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		if res.Duplicate {
			fmt.Printf("%s Already published as issue #%d\n", green("✓"), res.IssueNumber)
		} else {
			fmt.Printf("%s Created issue #%d\n", green("✓"), res.IssueNumber)
		}
		if res.IssueURL != "" {
			fmt.Printf("  %s\n", res.IssueURL)
		}
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <proposal-id>",
	Short: "Reject a proposal",
	Long: `Reject a pending proposal. Rejections live in the current analysis pass
only; use 'atim review' to triage a whole pass in one session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.controller.Reject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Rejected %s: %s\n", p.ID, p.Title)
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "Only show proposals with this status (pending, rejected, published)")
	listCmd.Flags().String("min-severity", "", "Only show proposals at or above this severity")
	listCmd.Flags().Bool("json", false, "Print proposals as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}

func severityColor(s types.Severity) func(a ...interface{}) string {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.SeverityHigh:
		return color.New(color.FgRed).SprintFunc()
	case types.SeverityMedium:
		return color.New(color.FgYellow).SprintFunc()
	}
	return color.New(color.FgHiBlack).SprintFunc()
}

func printProposalLine(p *types.IssueProposal) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	status := string(p.Status)
	if p.RemoteIssueNumber != nil {
		status = fmt.Sprintf("%s #%d", status, *p.RemoteIssueNumber)
	}
	fmt.Printf("  [%s] %s %s\n", severityColor(p.Severity)(fmt.Sprintf("%-8s", p.Severity)), p.Title, gray("("+status+")"))
	fmt.Printf("    %s", green(p.ID))
	if loc := p.Location(); loc != "" {
		fmt.Printf("  %s", gray(loc))
	}
	fmt.Println()
}

// explainPublishError adds an operator hint to classified publish failures.
func explainPublishError(err error) error {
	var pubErr *types.PublishError
	if !errors.As(err, &pubErr) {
		if errors.Is(err, types.ErrNoCredentialAvailable) {
			return fmt.Errorf("%w (set GITHUB_APP_*, ATIM_GITHUB_TOKEN or GITHUB_TOKEN)", err)
		}
		if errors.Is(err, types.ErrRepositoryUnavailable) {
			return fmt.Errorf("%w (run 'atim doctor' to check repository access)", err)
		}
		return err
	}
	switch pubErr.Kind {
	case types.PublishForbidden:
		return fmt.Errorf("%w (the %s credential lacks permission to create issues)", err, pubErr.Tier)
	case types.PublishRateLimited:
		if !pubErr.ResetAt.IsZero() {
			return fmt.Errorf("%w (retry after %s)", err, pubErr.ResetAt.Local().Format("15:04:05"))
		}
		return fmt.Errorf("%w (retry later)", err)
	}
	return fmt.Errorf("%w (the proposal is pending again; retry)", err)
}
