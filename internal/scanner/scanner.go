package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path"
	"strings"

	"github.com/atim-assistant/atim/internal/credentials"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/github"
	"github.com/atim-assistant/atim/internal/types"
)

// File is one scanned source file.
type File struct {
	Path    string
	Content []byte
}

// Remote is the read side of the hosting platform.
type Remote interface {
	GetRepository(ctx context.Context, token, owner, repo string) (*github.Repository, error)
	GetTree(ctx context.Context, token, owner, repo, ref string) (*github.Tree, error)
	GetFileContent(ctx context.Context, token, owner, repo, filePath, ref string) ([]byte, error)
}

// CredentialSource resolves the identity used for reads.
type CredentialSource interface {
	Resolve(ctx context.Context, scope credentials.Scope) (*credentials.Identity, error)
}

// Filter selects which files are scanned.
type Filter struct {
	Extensions   []string // with leading dot, case-insensitive; empty matches all
	ExcludeDirs  []string // any path segment equal to one of these is skipped
	MaxFiles     int      // 0 = unlimited
	MaxFileBytes int      // 0 = unlimited
}

// DefaultFilter scans C and C++ sources outside vendored and build trees.
func DefaultFilter() Filter {
	return Filter{
		Extensions:   []string{".cpp", ".c", ".h", ".hpp"},
		ExcludeDirs:  []string{".git", "build", "third_party", "vendor", "node_modules"},
		MaxFileBytes: 1 << 20,
	}
}

// Matches reports whether a path of the given size passes the filter.
func (f Filter) Matches(p string, size int) bool {
	if f.MaxFileBytes > 0 && size > f.MaxFileBytes {
		return false
	}
	if len(f.ExcludeDirs) > 0 {
		for _, seg := range strings.Split(path.Dir(p), "/") {
			for _, ex := range f.ExcludeDirs {
				if seg == ex {
					return false
				}
			}
		}
	}
	if len(f.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	for _, want := range f.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// Scanner enumerates source files of one repository.
type Scanner struct {
	remote   Remote
	creds    CredentialSource
	owner    string
	repo     string
	recorder events.Recorder
	logger   *slog.Logger
}

// Config holds scanner configuration
type Config struct {
	Remote      Remote
	Credentials CredentialSource
	Owner       string
	Repo        string
	Recorder    events.Recorder // optional
	Logger      *slog.Logger    // optional
}

// New creates a scanner
func New(cfg *Config) (*Scanner, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = events.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		remote:   cfg.Remote,
		creds:    cfg.Credentials,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Repository returns "owner/name".
func (s *Scanner) Repository() string {
	return s.owner + "/" + s.repo
}

// Scan checks that the repository is reachable and returns a lazy sequence
// of matching files. Reachability failures are returned immediately as
// ErrRepositoryUnavailable with nothing yielded. Files that cannot be
// fetched are skipped. If ctx is canceled the sequence yields ctx.Err()
// once and stops. Call Scan again to restart; a sequence is not resumable.
func (s *Scanner) Scan(ctx context.Context, filter Filter) (iter.Seq2[File, error], error) {
	l, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return l.Files, nil
}

// Listing is a planned scan.
type Listing struct {
	// Tree holds every file path in the repository, ignoring the filter.
	Tree []string
	// Files yields the files that passed the filter, as Scan does.
	Files iter.Seq2[File, error]
}

// List is Scan that also reports the unfiltered tree, so repository-wide
// checks can see files the filter excludes.
func (s *Scanner) List(ctx context.Context, filter Filter) (*Listing, error) {
	id, err := s.creds.Resolve(ctx, credentials.ScopeRead)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrRepositoryUnavailable, s.Repository(), err)
	}

	repo, err := s.remote.GetRepository(ctx, id.Token, s.owner, s.repo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err)
	}

	ref := repo.DefaultBranch
	if ref == "" {
		ref = "HEAD"
	}
	tree, err := s.remote.GetTree(ctx, id.Token, s.owner, s.repo, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err)
	}
	if tree.Truncated {
		s.logger.Warn("repository tree listing truncated", "repository", s.Repository(), "entries", len(tree.Entries))
	}

	var all, paths []string
	for _, e := range tree.Entries {
		if !e.IsFile() {
			continue
		}
		all = append(all, e.Path)
		if !filter.Matches(e.Path, e.Size) {
			continue
		}
		if filter.MaxFiles > 0 && len(paths) >= filter.MaxFiles {
			continue
		}
		paths = append(paths, e.Path)
	}
	s.logger.Debug("scan planned", "repository", s.Repository(), "ref", ref, "files", len(paths))

	files := func(yield func(File, error) bool) {
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				yield(File{}, err)
				return
			}

			content, err := s.remote.GetFileContent(ctx, id.Token, s.owner, s.repo, p, ref)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(File{}, ctxErr)
					return
				}
				s.skip(ctx, p, fmt.Errorf("%w: %s: %w", types.ErrFileUnavailable, p, err))
				continue
			}
			if filter.MaxFileBytes > 0 && len(content) > filter.MaxFileBytes {
				s.skip(ctx, p, fmt.Errorf("%w: %s: %d bytes exceeds limit", types.ErrFileUnavailable, p, len(content)))
				continue
			}

			if !yield(File{Path: p, Content: content}, nil) {
				return
			}
		}
	}
	return &Listing{Tree: all, Files: files}, nil
}

func (s *Scanner) skip(ctx context.Context, p string, err error) {
	data := map[string]interface{}{"path": p}
	if github.IsTimeout(err) {
		data["timeout"] = true
	}
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		data["status"] = apiErr.StatusCode
	}
	s.recorder.Record(ctx, events.NewEvent(events.EventTypeFileSkipped, "", events.SeverityWarning,
		err.Error(), data))
}
