package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/atim-assistant/atim/internal/types"
)

// Store is the SQLite-backed published-issue ledger.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the ledger at path. The special path
// ":memory:" opens a private in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(10000)"
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout is fixed-width so published_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `repository, title, file_path, issue_number, issue_url, proposal_id, credential_tier, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPublished(row rowScanner) (*types.PublishedIssue, error) {
	var rec types.PublishedIssue
	var tier, publishedAt string
	if err := row.Scan(&rec.Repository, &rec.Title, &rec.FilePath, &rec.IssueNumber,
		&rec.IssueURL, &rec.ProposalID, &tier, &publishedAt); err != nil {
		return nil, err
	}
	rec.CredentialTier = types.CredentialTier(tier)
	t, err := time.Parse(timeLayout, publishedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid published_at %q: %w", publishedAt, err)
	}
	rec.PublishedAt = t
	return &rec, nil
}

// Lookup returns the record for key, or nil if none exists.
func (s *Store) Lookup(ctx context.Context, repository string, key types.DedupKey) (*types.PublishedIssue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM published_issues
		WHERE repository = ? AND title = ? AND file_path = ?
	`, repository, key.Title, key.FilePath)

	rec, err := scanPublished(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up published issue: %w", err)
	}
	return rec, nil
}

// RecordPublished inserts rec unless its key is already recorded, in which
// case the existing record is returned with inserted=false.
func (s *Store) RecordPublished(ctx context.Context, rec *types.PublishedIssue) (*types.PublishedIssue, bool, error) {
	if err := rec.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid published issue: %w", err)
	}
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = time.Now()
	}

	// Raw BEGIN/COMMIT must run on one connection, so take it out of the pool.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE takes the write lock up front, which serializes the
	// check-then-insert below across processes.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, false, fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK to ensure cleanup happens even if ctx is canceled
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	existing, err := scanPublished(conn.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM published_issues
		WHERE repository = ? AND title = ? AND file_path = ?
	`, rec.Repository, rec.Title, rec.FilePath))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check existing record: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO published_issues (repository, title, file_path, issue_number, issue_url,
		                              proposal_id, credential_tier, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Repository, rec.Title, rec.FilePath, rec.IssueNumber, rec.IssueURL,
		rec.ProposalID, string(rec.CredentialTier), rec.PublishedAt.UTC().Format(timeLayout))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert published issue: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	out := *rec
	return &out, true, nil
}

// ListPublished returns records for repository, newest first.
func (s *Store) ListPublished(ctx context.Context, repository string, limit int) ([]*types.PublishedIssue, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM published_issues
		WHERE repository = ?
		ORDER BY published_at DESC, issue_number DESC
	`
	args := []any{repository}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list published issues: %w", err)
	}
	defer rows.Close()

	var out []*types.PublishedIssue
	for rows.Next() {
		rec, err := scanPublished(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan published issue: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
