package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/atim-assistant/atim/internal/credentials"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/github"
	"github.com/atim-assistant/atim/internal/types"
)

// IssueCreator is the write side of the hosting platform.
type IssueCreator interface {
	CreateIssue(ctx context.Context, token, owner, repo string, issue github.IssueRequest) (*github.Issue, error)
}

// CredentialSource resolves the identity used for writes.
type CredentialSource interface {
	Resolve(ctx context.Context, scope credentials.Scope) (*credentials.Identity, error)
}

// Ledger is the durable record of what has been published.
type Ledger interface {
	Lookup(ctx context.Context, repository string, key types.DedupKey) (*types.PublishedIssue, error)
	RecordPublished(ctx context.Context, rec *types.PublishedIssue) (*types.PublishedIssue, bool, error)
}

// Outcome is the result of a successful publish.
type Outcome struct {
	Number int
	URL    string
	// Duplicate is set when no new issue was created for this proposal
	// because one already exists for its (title, file path).
	Duplicate bool
	// ProposalID is the proposal whose publish created the issue.
	ProposalID string
	Tier       types.CredentialTier
}

// Publisher turns approved proposals into remote issues, at most one per
// (title, file path).
type Publisher struct {
	creator  IssueCreator
	creds    CredentialSource
	ledger   Ledger
	owner    string
	repo     string
	timeout  time.Duration
	group    singleflight.Group
	recorder events.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Config holds publisher configuration
type Config struct {
	Creator     IssueCreator
	Credentials CredentialSource
	Ledger      Ledger
	Owner       string
	Repo        string

	// Timeout bounds one whole publish, independent of the caller's
	// context (default: 30s)
	Timeout time.Duration

	Recorder events.Recorder // optional
	Logger   *slog.Logger    // optional
}

// New creates a publisher
func New(cfg *Config) (*Publisher, error) {
	if cfg.Creator == nil {
		return nil, fmt.Errorf("issue creator is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = events.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		creator:  cfg.Creator,
		creds:    cfg.Credentials,
		ledger:   cfg.Ledger,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Repository returns "owner/name".
func (p *Publisher) Repository() string {
	return p.owner + "/" + p.repo
}

// Publish creates the remote issue for proposal, or returns the existing
// one if its (title, file path) was already published. Concurrent calls
// for the same key share one attempt.
//
// The attempt runs on a context detached from ctx's cancellation and bounded
// by the publisher's own timeout, so once started it completes and its
// outcome is recorded even if the caller goes away.
func (p *Publisher) Publish(ctx context.Context, proposal *types.IssueProposal) (*Outcome, error) {
	key := proposal.DedupKey()
	snapshot := proposal.Clone()

	v, err, _ := p.group.Do(key.Title+"\x00"+key.FilePath, func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.publish(pctx, snapshot)
	})
	if err != nil {
		return nil, err
	}

	out := *v.(*Outcome)
	if out.ProposalID != proposal.ID {
		out.Duplicate = true
	}
	return &out, nil
}

func (p *Publisher) publish(ctx context.Context, proposal *types.IssueProposal) (*Outcome, error) {
	repository := p.Repository()
	key := proposal.DedupKey()

	existing, err := p.ledger.Lookup(ctx, repository, key)
	if err != nil {
		return nil, &types.PublishError{Kind: types.PublishTransient, Err: fmt.Errorf("checking ledger: %w", err)}
	}
	if existing != nil {
		p.recorder.Record(ctx, events.NewEvent(events.EventTypeDuplicateSuppressed, proposal.ID, events.SeverityInfo,
			fmt.Sprintf("%q already published as #%d", proposal.Title, existing.IssueNumber),
			map[string]interface{}{"issue_number": existing.IssueNumber, "original_proposal_id": existing.ProposalID}))
		return &Outcome{
			Number:     existing.IssueNumber,
			URL:        existing.IssueURL,
			Duplicate:  true,
			ProposalID: existing.ProposalID,
			Tier:       existing.CredentialTier,
		}, nil
	}

	id, err := p.creds.Resolve(ctx, credentials.ScopeWrite)
	if err != nil {
		p.recordFailure(ctx, proposal, "", err)
		return nil, fmt.Errorf("resolving write credential: %w", err)
	}

	now := p.now()
	issue, err := p.creator.CreateIssue(ctx, id.Token, p.owner, p.repo, github.IssueRequest{
		Title:  proposal.Title,
		Body:   FormatBody(proposal, now),
		Labels: proposal.Labels,
	})
	if err != nil {
		pubErr := Classify(err, id.Kind)
		p.recordFailure(ctx, proposal, pubErr.Kind, pubErr)
		return nil, pubErr
	}

	rec, inserted, err := p.ledger.RecordPublished(ctx, &types.PublishedIssue{
		Repository:     repository,
		Title:          proposal.Title,
		FilePath:       proposal.FilePath,
		IssueNumber:    issue.Number,
		IssueURL:       issue.HTMLURL,
		ProposalID:     proposal.ID,
		CredentialTier: id.Kind,
		PublishedAt:    now,
	})
	if err != nil {
		// The issue exists remotely; report it even though the ledger
		// could not record it.
		p.logger.Error("failed to record published issue",
			"proposal_id", proposal.ID, "issue_number", issue.Number, "error", err)
	} else if !inserted {
		p.logger.Warn("another writer published the same proposal first",
			"proposal_id", proposal.ID, "ours", issue.Number, "theirs", rec.IssueNumber)
		p.recorder.Record(ctx, events.NewEvent(events.EventTypeDuplicateSuppressed, proposal.ID, events.SeverityWarning,
			fmt.Sprintf("%q was published concurrently as #%d; #%d is redundant", proposal.Title, rec.IssueNumber, issue.Number),
			map[string]interface{}{"issue_number": rec.IssueNumber, "redundant_issue_number": issue.Number}))
		return &Outcome{
			Number:     rec.IssueNumber,
			URL:        rec.IssueURL,
			Duplicate:  true,
			ProposalID: rec.ProposalID,
			Tier:       rec.CredentialTier,
		}, nil
	}

	p.recorder.Record(ctx, events.NewEvent(events.EventTypeIssuePublished, proposal.ID, events.SeveritySuccess,
		fmt.Sprintf("created issue #%d: %s", issue.Number, proposal.Title),
		map[string]interface{}{"issue_number": issue.Number, "url": issue.HTMLURL, "tier": string(id.Kind)}))

	return &Outcome{
		Number:     issue.Number,
		URL:        issue.HTMLURL,
		ProposalID: proposal.ID,
		Tier:       id.Kind,
	}, nil
}

func (p *Publisher) recordFailure(ctx context.Context, proposal *types.IssueProposal, kind types.PublishErrorKind, err error) {
	data := map[string]interface{}{}
	if kind != "" {
		data["kind"] = string(kind)
	}
	var tierErr *types.TierError
	if errors.As(err, &tierErr) {
		data["tier"] = string(tierErr.Tier)
	}
	p.recorder.Record(ctx, events.NewEvent(events.EventTypePublishFailed, proposal.ID, events.SeverityError,
		fmt.Sprintf("publishing %q failed: %v", proposal.Title, err), data))
}

// Classify maps a create-issue failure to the publish error taxonomy:
// exhausted rate limits are RateLimited, other 4xx responses are Forbidden,
// and 5xx, timeouts and network failures are Transient.
func Classify(err error, tier types.CredentialTier) *types.PublishError {
	pubErr := &types.PublishError{Kind: types.PublishTransient, Tier: tier, Err: err}

	apiErr, ok := github.AsAPIError(err)
	if !ok {
		return pubErr
	}
	switch {
	case apiErr.RateLimited():
		pubErr.Kind = types.PublishRateLimited
		pubErr.ResetAt = apiErr.ResetTime()
	case apiErr.ServerError(), apiErr.StatusCode == http.StatusRequestTimeout:
		pubErr.Kind = types.PublishTransient
	default:
		// 401/403 scope problems, plus 404/410/422 which retrying won't fix
		pubErr.Kind = types.PublishForbidden
	}
	return pubErr
}
