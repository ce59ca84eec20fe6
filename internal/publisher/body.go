package publisher

import (
	"fmt"
	"strings"
	"time"

	"github.com/atim-assistant/atim/internal/types"
)

// Attribution names the detector in issue bodies.
const Attribution = "Atim AI Assistant"

// FormatBody renders the issue body for a proposal. The suggested fix is
// embedded verbatim in a fenced code block.
func FormatBody(p *types.IssueProposal, now time.Time) string {
	var b strings.Builder

	b.WriteString(p.Description)
	b.WriteString("\n\n**Analysis Details:**\n")
	fmt.Fprintf(&b, "- **Severity:** %s\n", p.Severity)
	fmt.Fprintf(&b, "- **Category:** %s\n", p.Category)
	fmt.Fprintf(&b, "- **Detected by:** %s\n", Attribution)
	fmt.Fprintf(&b, "- **Timestamp:** %s\n", now.UTC().Format("2006-01-02 15:04:05 UTC"))

	if p.FilePath != "" || p.LineNumber != nil {
		b.WriteString("\n")
	}
	if p.FilePath != "" {
		fmt.Fprintf(&b, "**File:** `%s`\n", p.FilePath)
	}
	if p.LineNumber != nil {
		fmt.Fprintf(&b, "**Line:** %d\n", *p.LineNumber)
	}

	if p.SuggestedFix != "" {
		fence := codeFence(p.SuggestedFix)
		fmt.Fprintf(&b, "\n**Suggested Fix:**\n%scpp\n%s\n%s\n", fence, p.SuggestedFix, fence)
	}

	fmt.Fprintf(&b, "\n---\n*Generated by %s*", Attribution)
	return b.String()
}

// codeFence returns a backtick fence longer than any backtick run in s.
func codeFence(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	n := 3
	if longest >= n {
		n = longest + 1
	}
	return strings.Repeat("`", n)
}
