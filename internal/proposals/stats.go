package proposals

import (
	"context"
	"fmt"

	"github.com/atim-assistant/atim/internal/credentials"
	"github.com/atim-assistant/atim/internal/github"
)

// DefaultLanguage is reported when the platform does not name one.
const DefaultLanguage = "C++"

// RepositoryStats summarizes the target repository.
type RepositoryStats struct {
	Name       string `json:"name"`
	OpenIssues int    `json:"open_issues"`
	OpenPulls  int    `json:"open_pulls"`
	Stars      int    `json:"stars"`
	Forks      int    `json:"forks"`
	Language   string `json:"language"`
	// Reachable is false when the figures are defaults.
	Reachable bool `json:"reachable"`
}

// StatsSource fetches live repository statistics.
type StatsSource interface {
	RepositoryStats(ctx context.Context) (*RepositoryStats, error)
}

// StatsRemote is the subset of the platform client used for statistics.
type StatsRemote interface {
	GetRepository(ctx context.Context, token, owner, repo string) (*github.Repository, error)
	CountOpenPulls(ctx context.Context, token, owner, repo string) (int, error)
}

// CredentialSource resolves the identity used for reads.
type CredentialSource interface {
	Resolve(ctx context.Context, scope credentials.Scope) (*credentials.Identity, error)
}

// RemoteStats reads statistics from the hosting platform.
type RemoteStats struct {
	remote StatsRemote
	creds  CredentialSource
	owner  string
	repo   string
}

// NewRemoteStats creates a platform-backed StatsSource.
func NewRemoteStats(remote StatsRemote, creds CredentialSource, owner, repo string) *RemoteStats {
	return &RemoteStats{remote: remote, creds: creds, owner: owner, repo: repo}
}

// RepositoryStats implements StatsSource.
func (s *RemoteStats) RepositoryStats(ctx context.Context) (*RepositoryStats, error) {
	id, err := s.creds.Resolve(ctx, credentials.ScopeRead)
	if err != nil {
		return nil, fmt.Errorf("resolving read credential: %w", err)
	}
	repo, err := s.remote.GetRepository(ctx, id.Token, s.owner, s.repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repository: %w", err)
	}
	pulls, err := s.remote.CountOpenPulls(ctx, id.Token, s.owner, s.repo)
	if err != nil {
		return nil, fmt.Errorf("counting open pulls: %w", err)
	}

	lang := repo.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	name := repo.FullName
	if name == "" {
		name = s.owner + "/" + s.repo
	}
	return &RepositoryStats{
		Name:       name,
		OpenIssues: repo.OpenIssuesCount,
		OpenPulls:  pulls,
		Stars:      repo.StargazersCount,
		Forks:      repo.ForksCount,
		Language:   lang,
		Reachable:  true,
	}, nil
}
