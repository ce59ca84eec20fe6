package types

import (
	"fmt"
	"time"
)

// PublishedIssue is the durable record of a remote issue created from a
// proposal. At most one exists per (repository, title, file path).
type PublishedIssue struct {
	Repository     string         `json:"repository"`
	Title          string         `json:"title"`
	FilePath       string         `json:"file_path,omitempty"`
	IssueNumber    int            `json:"issue_number"`
	IssueURL       string         `json:"issue_url,omitempty"`
	ProposalID     string         `json:"proposal_id"`
	CredentialTier CredentialTier `json:"credential_tier,omitempty"`
	PublishedAt    time.Time      `json:"published_at"`
}

// Key returns the dedup key of the record.
func (p *PublishedIssue) Key() DedupKey {
	return DedupKey{Title: p.Title, FilePath: p.FilePath}
}

// Validate checks if the record has valid field values
func (p *PublishedIssue) Validate() error {
	if p.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.IssueNumber < 1 {
		return fmt.Errorf("issue_number must be positive (got %d)", p.IssueNumber)
	}
	if p.ProposalID == "" {
		return fmt.Errorf("proposal_id is required")
	}
	return nil
}
