package sqlite

const schema = `
-- Published issues ledger: one row per remote issue created from a proposal
CREATE TABLE IF NOT EXISTS published_issues (
    repository TEXT NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 256),
    file_path TEXT NOT NULL DEFAULT '',
    issue_number INTEGER NOT NULL CHECK(issue_number > 0),
    issue_url TEXT NOT NULL DEFAULT '',
    proposal_id TEXT NOT NULL,
    credential_tier TEXT NOT NULL DEFAULT '',
    published_at TEXT NOT NULL,
    PRIMARY KEY (repository, title, file_path)
);

CREATE INDEX IF NOT EXISTS idx_published_issues_proposal ON published_issues(proposal_id);
CREATE INDEX IF NOT EXISTS idx_published_issues_published_at ON published_issues(repository, published_at);
`
