package types

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline error taxonomy. Callers match with errors.Is / errors.As.
var (
	// ErrNoCredentialAvailable is fatal until configuration changes.
	ErrNoCredentialAvailable = errors.New("no credential available")
	// ErrAssertionRejected means the platform refused a signed app assertion.
	// Retryable once with a freshly signed assertion.
	ErrAssertionRejected = errors.New("app assertion rejected")
	// ErrRepositoryUnavailable aborts a scan before anything is yielded.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrFileUnavailable is absorbed by the scanner; the file is skipped.
	ErrFileUnavailable = errors.New("file unavailable")
	// ErrProposalNotFound is returned when no proposal with the id exists in the current pass.
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrInvalidTransition is returned when the requested state change is not allowed.
	ErrInvalidTransition = errors.New("invalid transition")
)

// CredentialTier names an authentication identity kind.
type CredentialTier string

const (
	TierInstallation CredentialTier = "installation"
	TierBot          CredentialTier = "bot"
	TierUser         CredentialTier = "user"
	TierNone         CredentialTier = "none"
)

// TierError records which credential tier was attempted when resolution failed.
type TierError struct {
	Tier CredentialTier
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s credential: %v", e.Tier, e.Err)
}

func (e *TierError) Unwrap() error {
	return e.Err
}

// PublishErrorKind classifies publish failures.
type PublishErrorKind string

const (
	// PublishForbidden is non-retryable; the credential needs fixing.
	PublishForbidden PublishErrorKind = "forbidden"
	// PublishRateLimited is retryable after a caller-controlled cooldown.
	PublishRateLimited PublishErrorKind = "rate_limited"
	// PublishTransient is safe to retry immediately once.
	PublishTransient PublishErrorKind = "transient"
)

// PublishError is returned when creating the remote issue fails.
type PublishError struct {
	Kind PublishErrorKind
	// Tier is the credential tier that was used for the attempt.
	Tier CredentialTier
	// ResetAt is when a rate limit lifts, if the platform reported it.
	ResetAt time.Time
	Err     error
}

func (e *PublishError) Error() string {
	msg := fmt.Sprintf("publish failed (%s", e.Kind)
	if e.Tier != "" {
		msg += ", " + string(e.Tier) + " credential"
	}
	msg += ")"
	if !e.ResetAt.IsZero() {
		msg += fmt.Sprintf(" until %s", e.ResetAt.Format(time.RFC3339))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may try again.
func (e *PublishError) Retryable() bool {
	return e.Kind != PublishForbidden
}

// IsPublishError reports whether err is a PublishError of the given kind.
func IsPublishError(err error, kind PublishErrorKind) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == kind
}
