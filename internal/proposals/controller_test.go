package proposals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atim-assistant/atim/internal/analyzer"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/publisher"
	"github.com/atim-assistant/atim/internal/scanner"
	"github.com/atim-assistant/atim/internal/types"
)

type fakeScanner struct {
	mu          sync.Mutex
	files       map[string]string
	unfiltered  []string // tree paths the filter excludes
	unavailable bool
	scans       int
}

func (f *fakeScanner) List(ctx context.Context, filter scanner.Filter) (*scanner.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if f.unavailable {
		return nil, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, types.ErrNoCredentialAvailable)
	}

	paths := make([]string, 0, len(f.files))
	contents := make(map[string]string, len(f.files))
	for p, c := range f.files {
		paths = append(paths, p)
		contents[p] = c
	}
	sort.Strings(paths)
	tree := append(append([]string(nil), paths...), f.unfiltered...)

	files := func(yield func(scanner.File, error) bool) {
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				yield(scanner.File{}, err)
				return
			}
			if !yield(scanner.File{Path: p, Content: []byte(contents[p])}, nil) {
				return
			}
		}
	}
	return &scanner.Listing{Tree: tree, Files: files}, nil
}

func (f *fakeScanner) setFile(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

func (f *fakeScanner) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

type fakePublisher struct {
	calls   int32
	err     error
	panic   bool
	started chan struct{}
	release chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, p *types.IssueProposal) (*publisher.Outcome, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	num := 100 + int(n)
	return &publisher.Outcome{
		Number:     num,
		URL:        fmt.Sprintf("https://github.com/acme/chain/issues/%d", num),
		ProposalID: p.ID,
		Tier:       types.TierBot,
	}, nil
}

const vulnerable = `#include <cstring>
int main() {
    char buf[8];
    strcpy(buf, argv[1]);
}
`

var strcpyID = analyzer.ProposalID("security/strcpy", "src/main.cpp")

func newController(t *testing.T, files map[string]string) (*Controller, *fakeScanner, *fakePublisher) {
	t.Helper()
	sc := &fakeScanner{files: files}
	pub := &fakePublisher{}
	c, err := NewController(&Config{
		Scanner:    sc,
		Analyzer:   analyzer.NewDefault(),
		Publisher:  pub,
		Repository: "acme/chain",
		History:    events.NewHistory(50, nil),
	})
	require.NoError(t, err)
	return c, sc, pub
}

func findProposal(list []*types.IssueProposal, id string) *types.IssueProposal {
	for _, p := range list {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func TestListProposalsAnalyzesRepository(t *testing.T) {
	c, sc, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	list, err := c.ListProposals(ctx)
	require.NoError(t, err)

	p := findProposal(list, strcpyID)
	require.NotNil(t, p)
	assert.Equal(t, "Use of unsafe strcpy function", p.Title)
	assert.Equal(t, 4, *p.LineNumber)
	for _, prop := range list {
		assert.Equal(t, types.StatusPending, prop.Status)
		assert.NoError(t, prop.Validate())
	}

	// Repository-wide rules fire once per pass.
	assert.NotNil(t, findProposal(list, analyzer.ProposalID("architecture/logging", "")))

	// The pass is reused, not recomputed.
	_, err = c.ListProposals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sc.scanCount())

	summary, ok := c.Summary()
	require.True(t, ok)
	assert.False(t, summary.Sample)
	assert.Equal(t, len(list), summary.Total)
}

func TestListProposalsReturnsClones(t *testing.T) {
	c, _, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	list, err := c.ListProposals(ctx)
	require.NoError(t, err)
	findProposal(list, strcpyID).Status = types.StatusPublished

	again, err := c.ListProposals(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, findProposal(again, strcpyID).Status)
}

func TestSampleModeWhenUnavailable(t *testing.T) {
	c, sc, _ := newController(t, nil)
	sc.unavailable = true

	list, err := c.ListProposals(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, "sample_1", list[0].ID)

	summary, ok := c.Summary()
	require.True(t, ok)
	assert.True(t, summary.Sample)

	var sawSample bool
	for _, e := range c.History(0) {
		if e.Type == events.EventTypeSampleMode {
			sawSample = true
		}
	}
	assert.True(t, sawSample)
}

func TestSampleProposalsCannotBeApproved(t *testing.T) {
	c, sc, pub := newController(t, nil)
	sc.unavailable = true
	ctx := context.Background()

	_, err := c.ListProposals(ctx)
	require.NoError(t, err)

	res, err := c.Approve(ctx, "sample_1")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, types.ErrRepositoryUnavailable)
	assert.Contains(t, err.Error(), "sample proposal")
	assert.Equal(t, int32(0), atomic.LoadInt32(&pub.calls))

	p, err := c.Get(ctx, "sample_1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, p.Status)
	assert.Nil(t, p.RemoteIssueNumber)
}

func TestRepositoryRulesSeeUnfilteredTree(t *testing.T) {
	apiDocs := analyzer.ProposalID("documentation/api", "")

	c, _, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	list, err := c.ListProposals(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, findProposal(list, apiDocs))

	c, sc, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	sc.unfiltered = []string{"docs/api.md"}
	list, err = c.ListProposals(context.Background())
	require.NoError(t, err)
	assert.Nil(t, findProposal(list, apiDocs), "docs/api.md exists outside the scan filter")
	assert.NotNil(t, findProposal(list, strcpyID))
}

func TestRepositoryRulesNeedScannedFiles(t *testing.T) {
	c, sc, _ := newController(t, map[string]string{})
	sc.unfiltered = []string{"README.md"}

	list, err := c.ListProposals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRejectTwice(t *testing.T) {
	c, _, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	p, err := c.Reject(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, p.Status)

	_, err = c.Reject(ctx, strcpyID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = c.Approve(ctx, strcpyID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestApprovePublishes(t *testing.T) {
	c, _, pub := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	res, err := c.Approve(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, 101, res.IssueNumber)
	assert.False(t, res.Duplicate)
	assert.Equal(t, types.StatusPublished, res.Proposal.Status)
	require.NotNil(t, res.Proposal.RemoteIssueNumber)
	assert.Equal(t, 101, *res.Proposal.RemoteIssueNumber)
	assert.NoError(t, res.Proposal.Validate())

	// Idempotent re-approve returns the same number without publishing.
	again, err := c.Approve(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, 101, again.IssueNumber)
	assert.EqualValues(t, 1, atomic.LoadInt32(&pub.calls))

	_, err = c.Reject(ctx, strcpyID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	// Status and number travel together in every listed proposal.
	list, err := c.ListProposals(ctx)
	require.NoError(t, err)
	for _, p := range list {
		assert.Equal(t, p.Status == types.StatusPublished, p.RemoteIssueNumber != nil, p.ID)
	}
}

func TestApproveNotFound(t *testing.T) {
	c, sc, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	// First call computes the pass and does not recompute on the miss.
	_, err := c.Approve(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrProposalNotFound)
	assert.Equal(t, 1, sc.scanCount())

	// With a pass in place, a miss re-runs analysis exactly once.
	_, err = c.Approve(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrProposalNotFound)
	assert.Equal(t, 2, sc.scanCount())

	_, err = c.Reject(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrProposalNotFound)
}

func TestRecomputeOnMissCarriesState(t *testing.T) {
	c, sc, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	_, err := c.Reject(ctx, strcpyID)
	require.NoError(t, err)

	sc.setFile("src/util.cpp", "void f() { sprintf(buf, \"%d\", 1); }\n")
	sprintfID := analyzer.ProposalID("security/sprintf", "src/util.cpp")

	res, err := c.Approve(ctx, sprintfID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, res.Proposal.Status)
	assert.Equal(t, 2, sc.scanCount())

	p, err := c.Get(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, p.Status)
}

func TestPublishFailureReturnsToPending(t *testing.T) {
	c, _, pub := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()
	pub.err = &types.PublishError{Kind: types.PublishTransient, Tier: types.TierBot, Err: errors.New("502")}

	_, err := c.Approve(ctx, strcpyID)
	require.Error(t, err)
	assert.True(t, types.IsPublishError(err, types.PublishTransient))

	p, err := c.Get(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, p.Status)
	assert.Nil(t, p.RemoteIssueNumber)

	pub.err = nil
	res, err := c.Approve(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, res.Proposal.Status)
}

func TestConcurrentApproveSinglePublish(t *testing.T) {
	c, _, pub := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()
	_, err := c.ListProposals(ctx)
	require.NoError(t, err)

	pub.started = make(chan struct{}, 1)
	pub.release = make(chan struct{})

	type result struct {
		res *ApproveResult
		err error
	}
	first := make(chan result, 1)
	go func() {
		res, err := c.Approve(ctx, strcpyID)
		first <- result{res, err}
	}()

	select {
	case <-pub.started:
	case <-time.After(5 * time.Second):
		t.Fatal("publish never started")
	}

	// While the publish is in flight the proposal is approved.
	p, err := c.Get(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, p.Status)

	_, err = c.Approve(ctx, strcpyID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = c.Reject(ctx, strcpyID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	close(pub.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, types.StatusPublished, r.res.Proposal.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&pub.calls))
}

func TestApproveRecoversPanic(t *testing.T) {
	c, _, pub := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()
	pub.panic = true

	_, err := c.Approve(ctx, strcpyID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal error")

	p, err := c.Get(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, p.Status)
}

func TestRefreshKeepsPassOnError(t *testing.T) {
	c, _, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	_, err := c.ListProposals(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	summary, ok := c.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, summary.Seq)
}

func TestHistoryRecordsOperations(t *testing.T) {
	c, _, _ := newController(t, map[string]string{"src/main.cpp": vulnerable})
	ctx := context.Background()

	_, err := c.Approve(ctx, strcpyID)
	require.NoError(t, err)

	recent := c.History(0)
	require.NotEmpty(t, recent)
	var seen []events.EventType
	for _, e := range recent {
		seen = append(seen, e.Type)
	}
	assert.Contains(t, seen, events.EventTypeAnalysisStarted)
	assert.Contains(t, seen, events.EventTypeAnalysisCompleted)
	assert.Contains(t, seen, events.EventTypeProposalApproved)
}

func TestNewControllerValidates(t *testing.T) {
	_, err := NewController(&Config{})
	assert.Error(t, err)
}

type fakeLedger map[types.DedupKey]*types.PublishedIssue

func (f fakeLedger) Lookup(ctx context.Context, repository string, key types.DedupKey) (*types.PublishedIssue, error) {
	if repository != "acme/chain" {
		return nil, errors.New("wrong repository")
	}
	return f[key], nil
}

func TestLedgerMarksEarlierPublishes(t *testing.T) {
	key := types.DedupKey{Title: "Use of unsafe strcpy function", FilePath: "src/main.cpp"}
	ledger := fakeLedger{key: {IssueNumber: 12, IssueURL: "https://github.com/acme/chain/issues/12"}}

	pub := &fakePublisher{}
	c, err := NewController(&Config{
		Scanner:    &fakeScanner{files: map[string]string{"src/main.cpp": vulnerable}},
		Analyzer:   analyzer.NewDefault(),
		Publisher:  pub,
		Ledger:     ledger,
		Repository: "acme/chain",
	})
	require.NoError(t, err)
	ctx := context.Background()

	p, err := c.Get(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, p.Status)
	require.NotNil(t, p.RemoteIssueNumber)
	assert.Equal(t, 12, *p.RemoteIssueNumber)

	res, err := c.Approve(ctx, strcpyID)
	require.NoError(t, err)
	assert.Equal(t, 12, res.IssueNumber)
	assert.True(t, res.Duplicate)
	assert.EqualValues(t, 0, atomic.LoadInt32(&pub.calls))
}

func TestRepositoryStatsDefaults(t *testing.T) {
	c, _, _ := newController(t, nil)

	stats, err := c.RepositoryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &RepositoryStats{Name: "acme/chain", Language: DefaultLanguage}, stats)
}
