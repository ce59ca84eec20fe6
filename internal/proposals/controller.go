package proposals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/atim-assistant/atim/internal/analyzer"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/publisher"
	"github.com/atim-assistant/atim/internal/scanner"
	"github.com/atim-assistant/atim/internal/types"
)

// Scanner lists repository files for analysis.
type Scanner interface {
	List(ctx context.Context, filter scanner.Filter) (*scanner.Listing, error)
}

// Analyzer turns file contents into proposals.
type Analyzer interface {
	Analyze(path, content string) []*types.IssueProposal
	AnalyzeRepository(paths []string) []*types.IssueProposal
}

// Publisher creates remote issues for approved proposals.
type Publisher interface {
	Publish(ctx context.Context, proposal *types.IssueProposal) (*publisher.Outcome, error)
}

// Ledger answers whether a defect was already published, possibly by an
// earlier process.
type Ledger interface {
	Lookup(ctx context.Context, repository string, key types.DedupKey) (*types.PublishedIssue, error)
}

// ApproveResult is returned by a successful Approve.
type ApproveResult struct {
	Proposal    *types.IssueProposal
	IssueNumber int
	IssueURL    string
	// Duplicate is set when the issue already existed, either from an
	// earlier approval or from another proposal with the same title and file.
	Duplicate bool
}

// Controller owns the current analysis pass and the proposal state machine.
// It is the boundary handed to the CLI and any other front end.
type Controller struct {
	scanner    Scanner
	analyzer   Analyzer
	publisher  Publisher
	stats      StatsSource
	ledger     Ledger
	filter     scanner.Filter
	repository string
	history    *events.History
	logger     *slog.Logger

	mu      sync.Mutex
	pass    *Pass
	passSeq int
}

// Config holds controller configuration
type Config struct {
	Scanner   Scanner
	Analyzer  Analyzer
	Publisher Publisher
	Stats     StatsSource // optional; stats fall back to defaults

	// Ledger marks proposals published by earlier runs (optional)
	Ledger Ledger

	// Filter selects scanned files (default: scanner.DefaultFilter())
	Filter *scanner.Filter

	// Repository is "owner/name", reported when stats are unavailable
	Repository string

	History *events.History // optional
	Logger  *slog.Logger    // optional
}

// NewController creates a controller. No analysis runs until the first
// operation needs it.
func NewController(cfg *Config) (*Controller, error) {
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := cfg.History
	if history == nil {
		history = events.NewHistory(events.DefaultHistorySize, logger)
	}
	filter := scanner.DefaultFilter()
	if cfg.Filter != nil {
		filter = *cfg.Filter
	}
	return &Controller{
		scanner:    cfg.Scanner,
		analyzer:   cfg.Analyzer,
		publisher:  cfg.Publisher,
		stats:      cfg.Stats,
		ledger:     cfg.Ledger,
		filter:     filter,
		repository: cfg.Repository,
		history:    history,
		logger:     logger,
	}, nil
}

// ListProposals returns the current pass, running analysis first if there
// is none. When the repository cannot be read the sample set is returned.
func (c *Controller) ListProposals(ctx context.Context) (out []*types.IssueProposal, err error) {
	defer c.recoverPanic("list proposals", "", &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pass == nil {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return c.pass.list(), nil
}

// Refresh re-runs analysis, keeping the state of proposals whose ids
// survive into the new pass.
func (c *Controller) Refresh(ctx context.Context) (err error) {
	defer c.recoverPanic("refresh", "", &err)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Get returns one proposal from the current pass.
func (c *Controller) Get(ctx context.Context, id string) (out *types.IssueProposal, err error) {
	defer c.recoverPanic("get", id, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.lookupLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Approve publishes a pending proposal. Approval and publishing happen in
// one call: on success the proposal is published and carries the remote
// issue number; on failure it returns to pending and the classified
// publish error is returned. Approving a published proposal returns its
// existing number. Sample proposals are never published.
func (c *Controller) Approve(ctx context.Context, id string) (res *ApproveResult, err error) {
	defer c.recoverPanic("approve", id, &err)

	snapshot, done, err := c.beginApprove(ctx, id)
	if err != nil || done != nil {
		return done, err
	}

	finished := false
	defer func() {
		if !finished {
			c.abortApprove(id)
		}
	}()

	c.history.Record(ctx, events.NewSimpleEvent(events.EventTypeProposalApproved, id, events.SeverityInfo,
		fmt.Sprintf("approved %q, publishing", snapshot.Title)))

	out, err := c.publisher.Publish(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	res = c.finishApprove(snapshot, out)
	finished = true
	return res, nil
}

// beginApprove marks the proposal approved so racing calls observe the
// in-flight publish. A non-nil result means there is nothing to publish.
func (c *Controller) beginApprove(ctx context.Context, id string) (*types.IssueProposal, *ApproveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.lookupLocked(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if c.pass.Sample {
		return nil, nil, fmt.Errorf("%w: %s is a sample proposal and cannot be published", types.ErrRepositoryUnavailable, id)
	}

	switch p.Status {
	case types.StatusPublished:
		return nil, &ApproveResult{
			Proposal:    p.Clone(),
			IssueNumber: *p.RemoteIssueNumber,
			IssueURL:    p.RemoteIssueURL,
			Duplicate:   true,
		}, nil
	case types.StatusApproved:
		return nil, nil, fmt.Errorf("%w: proposal %s is already being published", types.ErrInvalidTransition, id)
	}
	if !p.Status.CanTransitionTo(types.StatusApproved) {
		return nil, nil, fmt.Errorf("%w: cannot approve %s proposal %s", types.ErrInvalidTransition, p.Status, id)
	}

	p.Status = types.StatusApproved
	return p.Clone(), nil, nil
}

// finishApprove records the outcome on whichever pass is current; analysis
// may have been re-run while the publish was in flight.
func (c *Controller) finishApprove(snapshot *types.IssueProposal, out *publisher.Outcome) *ApproveResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := snapshot
	if c.pass != nil {
		if cur := c.pass.get(snapshot.ID); cur != nil {
			p = cur
		}
	}
	p.Status = types.StatusPublished
	p.RemoteIssueNumber = types.IntPtr(out.Number)
	p.RemoteIssueURL = out.URL

	return &ApproveResult{
		Proposal:    p.Clone(),
		IssueNumber: out.Number,
		IssueURL:    out.URL,
		Duplicate:   out.Duplicate,
	}
}

// abortApprove returns an approved proposal to pending.
func (c *Controller) abortApprove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pass == nil {
		return
	}
	if p := c.pass.get(id); p != nil && p.Status == types.StatusApproved {
		p.Status = types.StatusPending
	}
}

// Reject moves a pending proposal to rejected.
func (c *Controller) Reject(ctx context.Context, id string) (out *types.IssueProposal, err error) {
	defer c.recoverPanic("reject", id, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.lookupLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransitionTo(types.StatusRejected) {
		return nil, fmt.Errorf("%w: cannot reject %s proposal %s", types.ErrInvalidTransition, p.Status, id)
	}
	p.Status = types.StatusRejected

	c.history.Record(ctx, events.NewSimpleEvent(events.EventTypeProposalRejected, id, events.SeverityInfo,
		fmt.Sprintf("rejected %q", p.Title)))
	return p.Clone(), nil
}

// RepositoryStats returns live statistics, or defaults carrying the
// configured repository name when the platform is unreachable.
func (c *Controller) RepositoryStats(ctx context.Context) (out *RepositoryStats, err error) {
	defer c.recoverPanic("repository stats", "", &err)

	if c.stats != nil {
		stats, err := c.stats.RepositoryStats(ctx)
		if err == nil {
			return stats, nil
		}
		c.logger.Warn("repository stats unavailable, using defaults", "repository", c.repository, "error", err)
	}
	return &RepositoryStats{Name: c.repository, Language: DefaultLanguage}, nil
}

// Summary reports the current pass without triggering analysis.
type Summary struct {
	Seq      int
	Sample   bool
	Total    int
	ByStatus map[types.Status]int
}

// Summary returns counts for the current pass; ok is false if no analysis
// has run yet.
func (c *Controller) Summary() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pass == nil {
		return Summary{}, false
	}
	return Summary{
		Seq:      c.pass.Seq,
		Sample:   c.pass.Sample,
		Total:    c.pass.Len(),
		ByStatus: c.pass.counts(),
	}, true
}

// History returns recent operations, newest first.
func (c *Controller) History(limit int) []*events.Event {
	return c.history.Recent(limit)
}

// lookupLocked finds id in the current pass. On a miss it re-runs analysis
// once and looks again. Caller must hold c.mu.
func (c *Controller) lookupLocked(ctx context.Context, id string) (*types.IssueProposal, error) {
	fresh := false
	if c.pass == nil {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
		fresh = true
	}
	if p := c.pass.get(id); p != nil {
		return p, nil
	}

	if !fresh {
		c.logger.Debug("proposal not in current pass, re-running analysis", "proposal_id", id)
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
		if p := c.pass.get(id); p != nil {
			return p, nil
		}
	}

	c.history.Record(ctx, events.NewSimpleEvent(events.EventTypeProposalNotFound, id, events.SeverityWarning,
		fmt.Sprintf("proposal %s not found", id)))
	return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, id)
}

// refreshLocked runs analysis and installs the result as the current pass.
// On error the previous pass is kept. Caller must hold c.mu.
func (c *Controller) refreshLocked(ctx context.Context) error {
	c.history.Record(ctx, events.NewSimpleEvent(events.EventTypeAnalysisStarted, "", events.SeverityInfo,
		fmt.Sprintf("analyzing %s", c.repository)))

	found, sample, err := c.analyze(ctx)
	if err != nil {
		c.history.Record(ctx, events.NewEvent(events.EventTypeAnalysisCompleted, "", events.SeverityError,
			fmt.Sprintf("analysis of %s failed: %v", c.repository, err), map[string]interface{}{"error": err.Error()}))
		return fmt.Errorf("analyzing repository: %w", err)
	}

	c.passSeq++
	next := newPass(c.passSeq, found, sample, c.logger)
	carried := next.carryOver(c.pass)
	if !sample {
		c.hydrate(ctx, next)
	}
	c.pass = next

	c.history.Record(ctx, events.NewEvent(events.EventTypeAnalysisCompleted, "", events.SeveritySuccess,
		fmt.Sprintf("analysis produced %d proposals", next.Len()),
		map[string]interface{}{"pass": next.Seq, "proposals": next.Len(), "carried_over": carried, "sample": sample}))
	return nil
}

// hydrate marks pending proposals whose (title, file path) the ledger has
// already published. Ledger errors leave the proposal pending.
func (c *Controller) hydrate(ctx context.Context, pass *Pass) {
	if c.ledger == nil {
		return
	}
	for _, id := range pass.order {
		p := pass.byID[id]
		if p.Status != types.StatusPending {
			continue
		}
		rec, err := c.ledger.Lookup(ctx, c.repository, p.DedupKey())
		if err != nil {
			c.logger.Warn("ledger lookup failed", "proposal_id", id, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		p.Status = types.StatusPublished
		p.RemoteIssueNumber = types.IntPtr(rec.IssueNumber)
		p.RemoteIssueURL = rec.IssueURL
	}
}

func (c *Controller) analyze(ctx context.Context) ([]*types.IssueProposal, bool, error) {
	listing, err := c.scanner.List(ctx, c.filter)
	if errors.Is(err, types.ErrRepositoryUnavailable) {
		c.history.Record(ctx, events.NewEvent(events.EventTypeSampleMode, "", events.SeverityWarning,
			"repository unavailable, showing sample proposals", map[string]interface{}{"error": err.Error()}))
		return analyzer.SampleProposals(), true, nil
	}
	if err != nil {
		return nil, false, err
	}

	var found []*types.IssueProposal
	scanned := 0
	for f, err := range listing.Files {
		if err != nil {
			return nil, false, err
		}
		scanned++
		found = append(found, c.analyzer.Analyze(f.Path, string(f.Content))...)
	}
	// Repository-wide rules look at the whole tree, including files the
	// filter excluded, but only once something was actually scanned.
	if scanned > 0 {
		found = append(found, c.analyzer.AnalyzeRepository(listing.Tree)...)
	}
	return found, false, nil
}

func (c *Controller) recoverPanic(op, id string, err *error) {
	if r := recover(); r != nil {
		c.logger.Error("recovered panic", "op", op, "proposal_id", id, "panic", r, "stack", string(debug.Stack()))
		*err = fmt.Errorf("%s: internal error: %v", op, r)
	}
}
