package events

import (
	"time"
)

// EventType represents the kind of pipeline operation that was recorded.
type EventType string

const (
	// EventTypeAnalysisStarted indicates an analysis pass began
	EventTypeAnalysisStarted EventType = "analysis_started"
	// EventTypeAnalysisCompleted indicates an analysis pass produced a proposal set
	EventTypeAnalysisCompleted EventType = "analysis_completed"
	// EventTypeSampleMode indicates analysis fell back to the illustrative proposal set
	EventTypeSampleMode EventType = "sample_mode"
	// EventTypeFileSkipped indicates a file could not be fetched and was skipped
	EventTypeFileSkipped EventType = "file_skipped"

	// EventTypeCredentialResolved indicates a credential tier was selected
	EventTypeCredentialResolved EventType = "credential_resolved"
	// EventTypeCredentialFailed indicates credential resolution failed
	EventTypeCredentialFailed EventType = "credential_failed"

	// EventTypeProposalApproved indicates a proposal was approved for publishing
	EventTypeProposalApproved EventType = "proposal_approved"
	// EventTypeProposalRejected indicates a proposal was rejected
	EventTypeProposalRejected EventType = "proposal_rejected"
	// EventTypeProposalNotFound indicates an approve/reject named an unknown id
	EventTypeProposalNotFound EventType = "proposal_not_found"
	// EventTypeIssuePublished indicates a remote issue was created
	EventTypeIssuePublished EventType = "issue_published"
	// EventTypeDuplicateSuppressed indicates publishing was skipped for an already-published defect
	EventTypeDuplicateSuppressed EventType = "duplicate_suppressed"
	// EventTypePublishFailed indicates the remote create-issue call failed
	EventTypePublishFailed EventType = "publish_failed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeveritySuccess indicates a completed outward-facing action
	SeveritySuccess EventSeverity = "success"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
)

// Event is one entry in the operation history.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// ProposalID is the proposal the event concerns, if any
	ProposalID string `json:"proposal_id,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}
