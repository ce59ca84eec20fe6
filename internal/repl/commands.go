package repl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/atim-assistant/atim/internal/analyzer"
	"github.com/atim-assistant/atim/internal/types"
)

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

func statusColor(s types.Status) func(a ...interface{}) string {
	switch s {
	case types.StatusPublished:
		return color.New(color.FgGreen).SprintFunc()
	case types.StatusRejected:
		return color.New(color.FgHiBlack).SprintFunc()
	case types.StatusApproved:
		return color.New(color.FgCyan).SprintFunc()
	}
	return color.New(color.FgYellow).SprintFunc()
}

// resolveID maps a listing number to its id; anything else is taken as an id.
func (r *REPL) resolveID(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("missing proposal number or id")
	}
	arg := args[0]
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(r.listed) {
			if len(r.listed) == 0 {
				return "", fmt.Errorf("no listing to pick #%d from; run 'list' first", n)
			}
			return "", fmt.Errorf("#%d is out of range (1-%d)", n, len(r.listed))
		}
		return r.listed[n-1], nil
	}
	return arg, nil
}

func (r *REPL) cmdList(args []string) error {
	all, err := r.ctl.ListProposals(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to list proposals: %w", err)
	}

	var filter types.Status
	if len(args) > 0 {
		filter = types.Status(strings.ToLower(args[0]))
		if !filter.IsValid() {
			return fmt.Errorf("unknown status %q", args[0])
		}
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	header := "Issue Proposals"
	if summary, ok := r.ctl.Summary(); ok && summary.Sample {
		header += " (sample: repository unavailable)"
	}
	fmt.Fprintf(r.out, "\n%s\n\n", cyan(header))

	r.listed = r.listed[:0]
	for _, p := range all {
		if filter != "" && p.Status != filter {
			continue
		}
		r.listed = append(r.listed, p.ID)

		sev := severityColor(p.Severity)
		st := statusColor(p.Status)
		fmt.Fprintf(r.out, "%3d. [%s] %s %s\n", len(r.listed), sev(string(p.Severity)), p.Title, st("("+string(p.Status)+")"))
		if loc := p.Location(); loc != "" {
			fmt.Fprintf(r.out, "     %s\n", gray(loc))
		}
	}

	if len(r.listed) == 0 {
		fmt.Fprintln(r.out, "  No proposals.")
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdShow(args []string) error {
	id, err := r.resolveID(args)
	if err != nil {
		return err
	}
	p, err := r.ctl.Get(r.ctx, id)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(r.out, "\n%s\n", bold(p.Title))
	fmt.Fprintf(r.out, "%s %s\n", gray("ID:"), p.ID)
	fmt.Fprintf(r.out, "%s %s   %s %s   %s %s\n",
		gray("Severity:"), severityColor(p.Severity)(string(p.Severity)),
		gray("Category:"), p.Category,
		gray("Status:"), statusColor(p.Status)(string(p.Status)))
	if loc := p.Location(); loc != "" {
		fmt.Fprintf(r.out, "%s %s\n", gray("Location:"), loc)
	}
	if len(p.Labels) > 0 {
		fmt.Fprintf(r.out, "%s %s\n", gray("Labels:"), strings.Join(p.Labels, ", "))
	}
	if p.RemoteIssueNumber != nil {
		fmt.Fprintf(r.out, "%s #%d %s\n", gray("Issue:"), *p.RemoteIssueNumber, p.RemoteIssueURL)
	}
	fmt.Fprintf(r.out, "\n%s\n", p.Description)
	if p.SuggestedFix != "" {
		fmt.Fprintf(r.out, "\n%s\n%s\n", bold("Suggested fix:"), p.SuggestedFix)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdApprove(args []string) error {
	id, err := r.resolveID(args)
	if err != nil {
		return err
	}
	res, err := r.ctl.Approve(r.ctx, id)
	if err != nil {
		var pubErr *types.PublishError
		if errors.As(err, &pubErr) && pubErr.Retryable() {
			return fmt.Errorf("%w (proposal is pending again; retry later)", err)
		}
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	if res.Duplicate {
		fmt.Fprintf(r.out, "%s Already published as issue #%d %s\n", green("✓"), res.IssueNumber, res.IssueURL)
		return nil
	}
	fmt.Fprintf(r.out, "%s Created issue #%d %s\n", green("✓"), res.IssueNumber, res.IssueURL)
	return nil
}

func (r *REPL) cmdReject(args []string) error {
	id, err := r.resolveID(args)
	if err != nil {
		return err
	}
	p, err := r.ctl.Reject(r.ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Rejected: %s\n", analyzer.Describe(p))
	return nil
}

func (r *REPL) cmdRefresh(args []string) error {
	if err := r.ctl.Refresh(r.ctx); err != nil {
		return err
	}
	r.listed = r.listed[:0]
	summary, _ := r.ctl.Summary()
	fmt.Fprintf(r.out, "Analysis pass %d: %d proposals (%d pending)\n",
		summary.Seq, summary.Total, summary.ByStatus[types.StatusPending])
	return nil
}

func (r *REPL) cmdStats(args []string) error {
	stats, err := r.ctl.RepositoryStats(r.ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(r.out, "\n%s\n\n", cyan(stats.Name))
	fmt.Fprintf(r.out, "  Open issues:  %d\n", stats.OpenIssues)
	fmt.Fprintf(r.out, "  Open pulls:   %d\n", stats.OpenPulls)
	fmt.Fprintf(r.out, "  Stars:        %d\n", stats.Stars)
	fmt.Fprintf(r.out, "  Forks:        %d\n", stats.Forks)
	fmt.Fprintf(r.out, "  Language:     %s\n", stats.Language)
	if !stats.Reachable {
		fmt.Fprintf(r.out, "\n  %s repository unreachable; figures are defaults\n", yellow("!"))
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdHistory(args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}

	recent := r.ctl.History(limit)
	if len(recent) == 0 {
		fmt.Fprintln(r.out, "No operations recorded yet.")
		return nil
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, e := range recent {
		fmt.Fprintf(r.out, "%s %-7s %-22s %s\n",
			gray(e.Timestamp.Format("15:04:05")), e.Severity, e.Type, e.Message)
	}
	return nil
}
