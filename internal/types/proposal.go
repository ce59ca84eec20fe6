package types

import (
	"fmt"
	"strings"
	"time"
)

// IssueProposal is a detected-issue candidate awaiting human disposition.
// It becomes a remote issue only after approval and a successful publish.
type IssueProposal struct {
	ID                string    `json:"id"`
	RuleID            string    `json:"rule_id,omitempty"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Severity          Severity  `json:"severity"`
	Category          Category  `json:"category"`
	FilePath          string    `json:"file_path,omitempty"`
	LineNumber        *int      `json:"line_number,omitempty"`
	SuggestedFix      string    `json:"suggested_fix,omitempty"`
	Labels            []string  `json:"labels"`
	Status            Status    `json:"status"`
	RemoteIssueNumber *int      `json:"remote_issue_number,omitempty"`
	RemoteIssueURL    string    `json:"remote_issue_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Validate checks if the proposal has valid field values
func (p *IssueProposal) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(p.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(p.Title) > 256 {
		return fmt.Errorf("title must be 256 characters or less (got %d)", len(p.Title))
	}
	if !p.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", p.Severity)
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", p.Category)
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.LineNumber != nil && *p.LineNumber < 1 {
		return fmt.Errorf("line_number must be positive (got %d)", *p.LineNumber)
	}
	if p.LineNumber != nil && p.FilePath == "" {
		return fmt.Errorf("line_number requires file_path")
	}

	// The remote number and the published status always travel together.
	if p.Status == StatusPublished && p.RemoteIssueNumber == nil {
		return fmt.Errorf("published proposal %s has no remote issue number", p.ID)
	}
	if p.Status != StatusPublished && p.RemoteIssueNumber != nil {
		return fmt.Errorf("proposal %s has remote issue number but status is %s", p.ID, p.Status)
	}

	return nil
}

// DedupKey returns the key under which two proposals are considered
// duplicates of each other.
func (p *IssueProposal) DedupKey() DedupKey {
	return DedupKey{Title: p.Title, FilePath: p.FilePath}
}

// IsRepositoryWide reports whether the proposal has no source location.
func (p *IssueProposal) IsRepositoryWide() bool {
	return p.FilePath == ""
}

// Location renders "path:line", "path", or "" for repository-wide proposals.
func (p *IssueProposal) Location() string {
	if p.FilePath == "" {
		return ""
	}
	if p.LineNumber != nil {
		return fmt.Sprintf("%s:%d", p.FilePath, *p.LineNumber)
	}
	return p.FilePath
}

// Clone returns a deep copy so callers can't mutate the authoritative pass.
func (p *IssueProposal) Clone() *IssueProposal {
	c := *p
	c.Labels = append([]string(nil), p.Labels...)
	if p.LineNumber != nil {
		n := *p.LineNumber
		c.LineNumber = &n
	}
	if p.RemoteIssueNumber != nil {
		n := *p.RemoteIssueNumber
		c.RemoteIssueNumber = &n
	}
	return &c
}

// DedupKey identifies a defect independent of the pass that found it.
type DedupKey struct {
	Title    string
	FilePath string
}

func (k DedupKey) String() string {
	if k.FilePath == "" {
		return k.Title
	}
	return k.Title + " @ " + k.FilePath
}

// Severity is an ordered enumeration; Rank() gives the ordering.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Rank returns 1 (low) through 4 (critical), or 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid severity: %q", v)
	}
	return s, nil
}

// Category classifies the kind of defect a proposal describes
type Category string

const (
	CategoryBug           Category = "bug"
	CategoryEnhancement   Category = "enhancement"
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryDocumentation Category = "documentation"
)

// IsValid checks if the category value is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryBug, CategoryEnhancement, CategorySecurity, CategoryPerformance, CategoryDocumentation:
		return true
	}
	return false
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(v string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(v)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid category: %q", v)
	}
	return c, nil
}

// Status is the lifecycle state of a proposal
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPublished:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusPublished
}

// CanTransitionTo encodes the proposal state machine:
//
//	pending → rejected
//	pending → approved → published
//	approved → pending (publish attempt failed)
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusPublished || next == StatusPending
	}
	return false
}

// NormalizeLabels trims, drops empties, and deduplicates labels while
// preserving first-seen order.
func NormalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int {
	return &v
}
