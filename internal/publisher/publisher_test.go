package publisher

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atim-assistant/atim/internal/credentials"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/github"
	"github.com/atim-assistant/atim/internal/storage/sqlite"
	"github.com/atim-assistant/atim/internal/types"
)

type fakeCreator struct {
	mu     sync.Mutex
	calls  int32
	next   int
	tokens []string
	err    error
	delay  time.Duration
	ctxErr error
}

func (f *fakeCreator) CreateIssue(ctx context.Context, token, owner, repo string, issue github.IssueRequest) (*github.Issue, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	n := 40 + f.next
	return &github.Issue{Number: n, HTMLURL: fmt.Sprintf("https://github.com/%s/%s/issues/%d", owner, repo, n), Title: issue.Title}, nil
}

type fakeExchanger struct{ token string }

func (f fakeExchanger) CreateInstallationToken(ctx context.Context, assertion, installationID string) (*github.InstallationToken, error) {
	return &github.InstallationToken{Token: f.token, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newLedger(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func botResolver() *credentials.Resolver {
	return credentials.NewResolver([]credentials.Strategy{
		credentials.NewStaticToken(types.TierBot, "bot-token"),
	}, nil, nil)
}

func newPublisher(t *testing.T, creator IssueCreator, creds CredentialSource, recorder events.Recorder) *Publisher {
	t.Helper()
	p, err := New(&Config{
		Creator:     creator,
		Credentials: creds,
		Ledger:      newLedger(t),
		Owner:       "acme",
		Repo:        "chain",
		Timeout:     5 * time.Second,
		Recorder:    recorder,
	})
	require.NoError(t, err)
	return p
}

func proposal(id, title, path string) *types.IssueProposal {
	return &types.IssueProposal{
		ID:          id,
		Title:       title,
		Description: "desc",
		Severity:    types.SeverityHigh,
		Category:    types.CategorySecurity,
		FilePath:    path,
		Labels:      []string{"security"},
		Status:      types.StatusApproved,
	}
}

func TestPublishCreatesIssue(t *testing.T) {
	creator := &fakeCreator{}
	history := events.NewHistory(10, nil)
	p := newPublisher(t, creator, botResolver(), history)

	out, err := p.Publish(context.Background(), proposal("a", "Use of unsafe strcpy function", "src/a.cpp"))
	require.NoError(t, err)
	assert.Equal(t, 41, out.Number)
	assert.Equal(t, "https://github.com/acme/chain/issues/41", out.URL)
	assert.False(t, out.Duplicate)
	assert.Equal(t, types.TierBot, out.Tier)
	assert.Equal(t, []string{"bot-token"}, creator.tokens)

	recent := history.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.EventTypeIssuePublished, recent[0].Type)
}

func TestPublishSuppressesDuplicates(t *testing.T) {
	creator := &fakeCreator{}
	p := newPublisher(t, creator, botResolver(), nil)
	ctx := context.Background()

	first, err := p.Publish(ctx, proposal("a", "Missing current supply tracking", "src/blockchain.cpp"))
	require.NoError(t, err)

	// Same (title, file path) from a later pass under a different id.
	second, err := p.Publish(ctx, proposal("b", "Missing current supply tracking", "src/blockchain.cpp"))
	require.NoError(t, err)

	assert.Equal(t, first.Number, second.Number)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "a", second.ProposalID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&creator.calls))

	// Same title in another file is a distinct defect.
	third, err := p.Publish(ctx, proposal("c", "Missing current supply tracking", "src/other.cpp"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Number, third.Number)
	assert.EqualValues(t, 2, atomic.LoadInt32(&creator.calls))
}

func TestPublishConcurrentSameKey(t *testing.T) {
	creator := &fakeCreator{delay: 20 * time.Millisecond}
	p := newPublisher(t, creator, botResolver(), nil)

	const callers = 10
	var wg sync.WaitGroup
	numbers := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := p.Publish(context.Background(), proposal(fmt.Sprintf("p%d", i), "Race", "src/race.cpp"))
			errs[i] = err
			if err == nil {
				numbers[i] = out.Number
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, numbers[0], numbers[i])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&creator.calls))
}

func TestPublishSurvivesCallerCancellation(t *testing.T) {
	creator := &fakeCreator{}
	p := newPublisher(t, creator, botResolver(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Publish(ctx, proposal("a", "t", "f.cpp"))
	require.NoError(t, err)
	assert.Equal(t, 41, out.Number)
	assert.NoError(t, creator.ctxErr)
}

func TestPublishNoCredential(t *testing.T) {
	creator := &fakeCreator{}
	history := events.NewHistory(10, nil)
	p := newPublisher(t, creator, credentials.NewResolver(nil, nil, nil), history)

	_, err := p.Publish(context.Background(), proposal("a", "t", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoCredentialAvailable)
	assert.EqualValues(t, 0, atomic.LoadInt32(&creator.calls))

	var failed bool
	for _, e := range history.Recent(0) {
		if e.Type == events.EventTypePublishFailed {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestPublishUsesInstallationExclusively(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	resolver := credentials.NewResolver([]credentials.Strategy{
		credentials.NewInstallation("123", "456", key, fakeExchanger{token: "inst-token"}),
		credentials.NewStaticToken(types.TierBot, "bot-token"),
	}, nil, nil)

	creator := &fakeCreator{}
	p := newPublisher(t, creator, resolver, nil)

	out, err := p.Publish(context.Background(), proposal("a", "t", "f.cpp"))
	require.NoError(t, err)
	assert.Equal(t, types.TierInstallation, out.Tier)
	assert.Equal(t, []string{"inst-token"}, creator.tokens)
}

func TestPublishFailureNotRecorded(t *testing.T) {
	creator := &fakeCreator{err: &github.APIError{StatusCode: http.StatusForbidden, Remaining: -1, Message: "Resource not accessible by integration"}}
	p := newPublisher(t, creator, botResolver(), nil)

	_, err := p.Publish(context.Background(), proposal("a", "t", "f.cpp"))
	require.Error(t, err)
	assert.True(t, types.IsPublishError(err, types.PublishForbidden))

	var pubErr *types.PublishError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, types.TierBot, pubErr.Tier)
	assert.False(t, pubErr.Retryable())

	// Nothing was recorded, so a later attempt tries again.
	creator.err = nil
	out, err := p.Publish(context.Background(), proposal("a", "t", "f.cpp"))
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
}

func TestClassify(t *testing.T) {
	reset := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		err  error
		want types.PublishErrorKind
	}{
		{"unauthorized", &github.APIError{StatusCode: 401, Remaining: -1}, types.PublishForbidden},
		{"insufficient scope", &github.APIError{StatusCode: 403, Remaining: 4000}, types.PublishForbidden},
		{"issues disabled", &github.APIError{StatusCode: 410, Remaining: -1}, types.PublishForbidden},
		{"primary rate limit", &github.APIError{StatusCode: 403, Remaining: 0, ResetAt: reset}, types.PublishRateLimited},
		{"secondary rate limit", &github.APIError{StatusCode: 403, Remaining: -1, RetryAfter: time.Minute}, types.PublishRateLimited},
		{"too many requests", &github.APIError{StatusCode: 429, Remaining: -1}, types.PublishRateLimited},
		{"server error", &github.APIError{StatusCode: 502, Remaining: -1}, types.PublishTransient},
		{"timeout", fmt.Errorf("creating issue: %w", context.DeadlineExceeded), types.PublishTransient},
		{"network", errors.New("connection reset by peer"), types.PublishTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(fmt.Errorf("creating issue: %w", tt.err), types.TierUser)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, types.TierUser, got.Tier)
		})
	}

	got := Classify(&github.APIError{StatusCode: 403, Remaining: 0, ResetAt: reset}, types.TierBot)
	assert.True(t, reset.Equal(got.ResetAt))
	assert.True(t, got.Retryable())
}

func TestFormatBody(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	p := proposal("a", "Use of unsafe strcpy function", "src/main.cpp")
	p.Description = "strcpy does not check bounds."
	p.LineNumber = types.IntPtr(17)
	p.SuggestedFix = "strncpy(dst, src, sizeof(dst) - 1);"

	body := FormatBody(p, now)

	want := "strcpy does not check bounds.\n\n" +
		"**Analysis Details:**\n" +
		"- **Severity:** high\n" +
		"- **Category:** security\n" +
		"- **Detected by:** Atim AI Assistant\n" +
		"- **Timestamp:** 2026-02-03 04:05:06 UTC\n" +
		"\n**File:** `src/main.cpp`\n" +
		"**Line:** 17\n" +
		"\n**Suggested Fix:**\n```cpp\nstrncpy(dst, src, sizeof(dst) - 1);\n```\n" +
		"\n---\n*Generated by Atim AI Assistant*"
	assert.Equal(t, want, body)
}

func TestFormatBodyRepositoryWide(t *testing.T) {
	p := proposal("a", "Add comprehensive logging system", "")
	p.SuggestedFix = "use ```fences``` carefully"

	body := FormatBody(p, time.Now())
	assert.NotContains(t, body, "**File:**")
	assert.NotContains(t, body, "**Line:**")
	assert.Contains(t, body, "\n````cpp\nuse ```fences``` carefully\n````\n")
	assert.True(t, strings.HasSuffix(body, "*Generated by Atim AI Assistant*"))
}

func TestNewValidates(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)

	_, err = New(&Config{Creator: &fakeCreator{}, Credentials: botResolver(), Ledger: newLedger(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner and name")
}
