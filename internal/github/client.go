package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the public REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	apiVersion = "2022-11-28"
)

// Client is a thin GitHub REST client. Tokens are passed per call so the
// caller decides which credential tier each request runs under.
type Client struct {
	apiURL  string
	httpCli *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	APIURL string // REST base URL (default: https://api.github.com)

	// Timeout bounds every request, including body reads (default: 15s)
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests (default: 10, burst 5)
	RequestsPerSecond float64
	Burst             int

	// MaxConcurrent caps in-flight requests (default: 4)
	MaxConcurrent int64

	HTTPClient *http.Client // optional, for tests
	Logger     *slog.Logger
}

// NewClient creates a new GitHub client
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	httpCli := cfg.HTTPClient
	if httpCli == nil {
		httpCli = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiURL:  apiURL,
		httpCli: httpCli,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  logger,
	}
}

// Repository is the subset of repository metadata the pipeline uses.
type Repository struct {
	FullName        string `json:"full_name"`
	Name            string `json:"name"`
	DefaultBranch   string `json:"default_branch"`
	Language        string `json:"language"`
	OpenIssuesCount int    `json:"open_issues_count"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	Private         bool   `json:"private"`
}

// TreeEntry is one node of a recursive git tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	Size int    `json:"size"`
	SHA  string `json:"sha"`
}

// IsFile reports whether the entry is a regular file.
func (e TreeEntry) IsFile() bool {
	return e.Type == "blob"
}

// Tree is a git tree listing.
type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// IssueRequest is the create-issue payload.
type IssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// Issue is the create-issue response.
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
	State   string `json:"state"`
}

// InstallationToken is a short-lived app installation token.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, token, owner, repo string) (*Repository, error) {
	var out Repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, err)
	}
	return &out, nil
}

// GetTree lists the tree at ref, recursively.
func (c *Client) GetTree(ctx context.Context, token, owner, repo, ref string) (*Tree, error) {
	var out Tree
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1",
		url.PathEscape(owner), url.PathEscape(repo), escapePath(ref))
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, fmt.Errorf("listing tree %s/%s@%s: %w", owner, repo, ref, err)
	}
	return &out, nil
}

// GetFileContent fetches the raw content of one file at ref.
func (c *Client) GetFileContent(ctx context.Context, token, owner, repo, filePath, ref string) ([]byte, error) {
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(repo), escapePath(filePath))
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}

	body, err := c.do(ctx, http.MethodGet, path, token, "application/vnd.github.raw", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", filePath, err)
	}
	return body, nil
}

// CountOpenPulls returns the number of open pull requests, up to 100.
func (c *Client) CountOpenPulls(ctx context.Context, token, owner, repo string) (int, error) {
	var pulls []struct {
		Number int `json:"number"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&per_page=100", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &pulls); err != nil {
		return 0, fmt.Errorf("listing open pulls: %w", err)
	}
	return len(pulls), nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, token, owner, repo string, issue IssueRequest) (*Issue, error) {
	var out Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.doJSON(ctx, http.MethodPost, path, token, issue, &out); err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	if out.Number == 0 {
		return nil, fmt.Errorf("creating issue: response carried no issue number")
	}
	return &out, nil
}

// CreateInstallationToken exchanges a signed app assertion for an
// installation token.
func (c *Client) CreateInstallationToken(ctx context.Context, assertion, installationID string) (*InstallationToken, error) {
	var out InstallationToken
	path := fmt.Sprintf("/app/installations/%s/access_tokens", url.PathEscape(installationID))
	if err := c.doJSON(ctx, http.MethodPost, path, assertion, nil, &out); err != nil {
		return nil, fmt.Errorf("exchanging installation token: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("exchanging installation token: empty token in response")
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	body, err := c.do(ctx, method, path, token, "application/vnd.github+json", payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// do runs one request under the pacing limiter, the concurrency cap, and
// the per-call timeout. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path, token, accept string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}
	defer c.sem.Release(1)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", "atim")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("github request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp, body)
	}
	return body, nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func parseUnix(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
