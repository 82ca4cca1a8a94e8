package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite database/sql driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS automerge_policy (
	project_key TEXT NOT NULL,
	repo_slug TEXT NOT NULL,
	automerge_target_branches TEXT NOT NULL DEFAULT '[]',
	automerge_source_branches TEXT NOT NULL DEFAULT '[]',
	blocked_target_branches TEXT NOT NULL DEFAULT '[]',
	merge_method TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (project_key, repo_slug)
);
`

const (
	busyTimeoutMS = 5000
	maxOpenConns  = 1
)

// SQLiteStore stores policies in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens the database at path and creates the policy table if
// it does not exist.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database failed: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range append(pragmas, sqliteSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing database failed: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ConfigForRepo returns the stored policy of the repository, an empty Config
// if none is stored.
func (s *SQLiteStore) ConfigForRepo(ctx context.Context, projectKey, repoSlug string) (*Config, error) {
	var targets, sources, blocked, method string

	err := s.db.QueryRowContext(ctx,
		`SELECT automerge_target_branches, automerge_source_branches, blocked_target_branches, merge_method
		 FROM automerge_policy WHERE project_key = ? AND repo_slug = ?`,
		projectKey, repoSlug,
	).Scan(&targets, &sources, &blocked, &method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Config{}, nil
		}

		return nil, fmt.Errorf("querying policy failed: %w", err)
	}

	result := Config{MergeMethod: MergeMethod(method)}

	if err := json.Unmarshal([]byte(targets), &result.AutomergeTargetPatterns); err != nil {
		return nil, fmt.Errorf("decoding automerge_target_branches column failed: %w", err)
	}

	if err := json.Unmarshal([]byte(sources), &result.AutomergeFromSourcePatterns); err != nil {
		return nil, fmt.Errorf("decoding automerge_source_branches column failed: %w", err)
	}

	if err := json.Unmarshal([]byte(blocked), &result.BlockedTargetPatterns); err != nil {
		return nil, fmt.Errorf("decoding blocked_target_branches column failed: %w", err)
	}

	return &result, nil
}

func marshalPatterns(patterns []string) (string, error) {
	if patterns == nil {
		patterns = []string{}
	}

	b, err := json.Marshal(patterns)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// SetConfigForRepo validates cfg and stores it as policy of the repository,
// replacing an existing one.
func (s *SQLiteStore) SetConfigForRepo(ctx context.Context, projectKey, repoSlug string, cfg *Config) error {
	if projectKey == "" || repoSlug == "" {
		return errors.New("project key and repository slug must not be empty")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	targets, err := marshalPatterns(cfg.AutomergeTargetPatterns)
	if err != nil {
		return err
	}

	sources, err := marshalPatterns(cfg.AutomergeFromSourcePatterns)
	if err != nil {
		return err
	}

	blocked, err := marshalPatterns(cfg.BlockedTargetPatterns)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO automerge_policy
		 (project_key, repo_slug, automerge_target_branches, automerge_source_branches, blocked_target_branches, merge_method, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_key, repo_slug) DO UPDATE SET
		   automerge_target_branches = excluded.automerge_target_branches,
		   automerge_source_branches = excluded.automerge_source_branches,
		   blocked_target_branches = excluded.blocked_target_branches,
		   merge_method = excluded.merge_method,
		   updated_at = excluded.updated_at`,
		projectKey, repoSlug, targets, sources, blocked, string(cfg.MergeMethod),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing policy failed: %w", err)
	}

	return nil
}
