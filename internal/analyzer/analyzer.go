package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atim-assistant/atim/internal/types"
)

// idNamespace scopes name-based proposal ids so that the same rule firing
// on the same path always yields the same id across passes.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("atim.proposals"))

// ProposalID returns the deterministic id for a rule firing on path.
// Repository-wide rules use an empty path.
func ProposalID(ruleID, path string) string {
	return uuid.NewSHA1(idNamespace, []byte(ruleID+"\x00"+path)).String()
}

// Analyzer applies an ordered rule catalog to source files. It holds no
// per-pass state and is safe for concurrent use.
type Analyzer struct {
	rules     []Rule
	repoRules []RepositoryRule
	now       func() time.Time
}

// New creates an analyzer over the given catalogs. Rules are evaluated in
// the order given.
func New(rules []Rule, repoRules []RepositoryRule) *Analyzer {
	return &Analyzer{rules: rules, repoRules: repoRules, now: time.Now}
}

// NewDefault creates an analyzer with the built-in catalogs.
func NewDefault() *Analyzer {
	return New(BuiltinRules(), BuiltinRepositoryRules())
}

// WithCatalog returns a copy of a with extra rules appended after the
// existing ones. A catalog rule may not reuse an id already in a, since
// the two would produce the same proposal ids.
func (a *Analyzer) WithCatalog(c *Catalog) (*Analyzer, error) {
	if c == nil {
		return a, nil
	}
	seen := make(map[string]bool, len(a.rules)+len(a.repoRules))
	for _, r := range a.rules {
		seen[r.ID] = true
	}
	for _, r := range a.repoRules {
		seen[r.ID] = true
	}
	for _, r := range c.Rules {
		if seen[r.ID] {
			return nil, fmt.Errorf("catalog rule %q conflicts with an existing rule", r.ID)
		}
	}
	for _, r := range c.RepositoryRules {
		if seen[r.ID] {
			return nil, fmt.Errorf("catalog repository rule %q conflicts with an existing rule", r.ID)
		}
	}

	out := *a
	out.rules = append(append([]Rule(nil), a.rules...), c.Rules...)
	out.repoRules = append(append([]RepositoryRule(nil), a.repoRules...), c.RepositoryRules...)
	return &out, nil
}

// Rules returns the file-level catalog in evaluation order.
func (a *Analyzer) Rules() []Rule {
	return append([]Rule(nil), a.rules...)
}

// RepositoryRules returns the repository-wide catalog.
func (a *Analyzer) RepositoryRules() []RepositoryRule {
	return append([]RepositoryRule(nil), a.repoRules...)
}

// RuleCount returns the number of file-level and repository-wide rules.
func (a *Analyzer) RuleCount() (file, repository int) {
	return len(a.rules), len(a.repoRules)
}

// Analyze returns the proposals for one file in catalog order. Each rule
// contributes at most one proposal.
func (a *Analyzer) Analyze(path, content string) []*types.IssueProposal {
	var out []*types.IssueProposal
	now := a.now().UTC()

	for i := range a.rules {
		r := &a.rules[i]
		if !r.AppliesTo(path) {
			continue
		}

		loc := r.Pattern.FindStringIndex(content)
		if r.Absent {
			if loc != nil {
				continue
			}
			out = append(out, a.proposal(r.ID, r.Title, r.Description, r.SuggestedFix,
				r.Severity, r.Category, r.Labels, path, nil, now))
			continue
		}
		if loc == nil {
			continue
		}

		line := strings.Count(content[:loc[0]], "\n") + 1
		out = append(out, a.proposal(r.ID, r.Title, r.Description, r.SuggestedFix,
			r.Severity, r.Category, r.Labels, path, &line, now))
	}

	return out
}

// AnalyzeRepository evaluates the repository-wide rules once over the
// repository's file paths.
func (a *Analyzer) AnalyzeRepository(paths []string) []*types.IssueProposal {
	var out []*types.IssueProposal
	now := a.now().UTC()

	for i := range a.repoRules {
		r := &a.repoRules[i]
		if !r.Fires(paths) {
			continue
		}
		out = append(out, a.proposal(r.ID, r.Title, r.Description, r.SuggestedFix,
			r.Severity, r.Category, r.Labels, "", nil, now))
	}
	return out
}

func (a *Analyzer) proposal(ruleID, title, description, fix string, sev types.Severity, cat types.Category,
	labels []string, path string, line *int, now time.Time) *types.IssueProposal {
	return &types.IssueProposal{
		ID:           ProposalID(ruleID, path),
		RuleID:       ruleID,
		Title:        title,
		Description:  description,
		Severity:     sev,
		Category:     cat,
		FilePath:     path,
		LineNumber:   line,
		SuggestedFix: fix,
		Labels:       types.NormalizeLabels(labels),
		Status:       types.StatusPending,
		CreatedAt:    now,
	}
}

// Describe renders a one-line summary of a proposal for logs.
func Describe(p *types.IssueProposal) string {
	if loc := p.Location(); loc != "" {
		return fmt.Sprintf("[%s/%s] %s (%s)", p.Severity, p.Category, p.Title, loc)
	}
	return fmt.Sprintf("[%s/%s] %s", p.Severity, p.Category, p.Title)
}
