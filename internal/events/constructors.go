package events

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent creates an Event with a fresh id and the current time.
func NewEvent(eventType EventType, proposalID string, severity EventSeverity, message string, data map[string]interface{}) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		ProposalID: proposalID,
		Severity:   severity,
		Message:    message,
		Data:       data,
	}
}

// NewSimpleEvent creates an Event with no structured data.
func NewSimpleEvent(eventType EventType, proposalID string, severity EventSeverity, message string) *Event {
	return NewEvent(eventType, proposalID, severity, message, nil)
}
