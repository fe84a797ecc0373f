package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/repodock/repodock/internal/api"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the SQLite database and creates necessary tables.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	repoQuery := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT 'main',
		local_path TEXT NOT NULL DEFAULT '',
		auth_method TEXT NOT NULL DEFAULT 'public',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_sync_status TEXT NOT NULL DEFAULT 'never',
		last_sync_time DATETIME,
		last_sync_commit TEXT NOT NULL DEFAULT '',
		last_sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(repoQuery); err != nil {
		return nil, fmt.Errorf("failed to create repositories table: %w", err)
	}

	credentialsQuery := `
	CREATE TABLE IF NOT EXISTS repository_credentials (
		repository_name TEXT PRIMARY KEY,
		deploy_key_ciphertext BLOB NOT NULL,
		deploy_key_nonce BLOB NOT NULL,
		FOREIGN KEY(repository_name) REFERENCES repositories(name) ON DELETE CASCADE
	);
	`
	if _, err := db.Exec(credentialsQuery); err != nil {
		return nil, fmt.Errorf("failed to create repository_credentials table: %w", err)
	}

	operationsQuery := `
	CREATE TABLE IF NOT EXISTS operation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL DEFAULT '',
		repository_name TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		sync_status TEXT NOT NULL,
		changed INTEGER NOT NULL DEFAULT 0,
		commit_hash TEXT NOT NULL DEFAULT '',
		error_kind TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT '',
		restart_results TEXT NOT NULL DEFAULT '[]',
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(operationsQuery); err != nil {
		return nil, fmt.Errorf("failed to create operation_logs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateRepository(ctx context.Context, repo *api.Repository) error {
	query := `
	INSERT INTO repositories (name, url, branch, local_path, auth_method, is_active, last_sync_status, last_sync_time, last_sync_commit, last_sync_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		repo.Name,
		repo.URL,
		repo.Branch,
		repo.LocalPath,
		repo.AuthMethod,
		boolToInt(repo.IsActive),
		repo.LastSyncStatus,
		nullableTime(repo.LastSyncTime),
		repo.LastSyncCommit,
		repo.LastSyncError,
		repo.CreatedAt,
	)
	if err != nil && isSQLiteConstraintErr(err) {
		return ErrRepositoryExists
	}
	return err
}

func (s *SQLiteStore) GetRepository(ctx context.Context, name string) (*api.Repository, error) {
	query := `SELECT name, url, branch, local_path, auth_method, is_active, last_sync_status, last_sync_time, last_sync_commit, last_sync_error, created_at FROM repositories WHERE name = ?`
	return scanRepository(s.db.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*api.Repository, error) {
	query := `SELECT name, url, branch, local_path, auth_method, is_active, last_sync_status, last_sync_time, last_sync_commit, last_sync_error, created_at FROM repositories ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*api.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			continue
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteStore) DeleteRepository(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM repository_credentials WHERE repository_name = ?`, name); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE name = ?`, name)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRepositoryNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpdateSyncResult(ctx context.Context, name, status string, at time.Time, commit, errorDetail string) error {
	query := `UPDATE repositories SET last_sync_status = ?, last_sync_time = ?, last_sync_commit = ?, last_sync_error = ? WHERE name = ?`
	result, err := s.db.ExecContext(ctx, query, status, at, commit, errorDetail, name)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *SQLiteStore) UpsertRepositoryCredential(ctx context.Context, credential *RepositoryCredential) error {
	query := `
	INSERT INTO repository_credentials (repository_name, deploy_key_ciphertext, deploy_key_nonce)
	VALUES (?, ?, ?)
	ON CONFLICT(repository_name) DO UPDATE SET
		deploy_key_ciphertext = excluded.deploy_key_ciphertext,
		deploy_key_nonce = excluded.deploy_key_nonce
	`
	_, err := s.db.ExecContext(ctx, query, credential.RepositoryName, credential.DeployKeyCiphertext, credential.DeployKeyNonce)
	return err
}

func (s *SQLiteStore) GetRepositoryCredential(ctx context.Context, name string) (*RepositoryCredential, error) {
	query := `SELECT repository_name, deploy_key_ciphertext, deploy_key_nonce FROM repository_credentials WHERE repository_name = ?`
	row := s.db.QueryRowContext(ctx, query, name)

	var credential RepositoryCredential
	err := row.Scan(&credential.RepositoryName, &credential.DeployKeyCiphertext, &credential.DeployKeyNonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

func (s *SQLiteStore) DeleteRepositoryCredential(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repository_credentials WHERE repository_name = ?`, name)
	return err
}

func (s *SQLiteStore) AppendOperation(ctx context.Context, outcome *api.OperationOutcome) error {
	restartResults, err := json.Marshal(outcome.RestartResults)
	if err != nil {
		return fmt.Errorf("failed to encode restart results: %w", err)
	}
	if outcome.RestartResults == nil {
		restartResults = []byte("[]")
	}

	query := `
	INSERT INTO operation_logs (operation_id, repository_name, trigger_kind, sync_status, changed, commit_hash, error_kind, error_detail, restart_results, started_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		outcome.ID,
		outcome.RepositoryName,
		outcome.Trigger,
		outcome.SyncStatus,
		boolToInt(outcome.Changed),
		outcome.CommitHash,
		outcome.ErrorKind,
		outcome.ErrorDetail,
		string(restartResults),
		outcome.StartedAt,
		outcome.CompletedAt,
	)
	return err
}

func (s *SQLiteStore) ListOperations(ctx context.Context, limit int) ([]*api.OperationOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT operation_id, repository_name, trigger_kind, sync_status, changed, commit_hash, error_kind, error_detail, restart_results, started_at, completed_at FROM operation_logs ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*api.OperationOutcome
	for rows.Next() {
		var outcome api.OperationOutcome
		var changed int
		var restartResults string
		if err := rows.Scan(
			&outcome.ID,
			&outcome.RepositoryName,
			&outcome.Trigger,
			&outcome.SyncStatus,
			&changed,
			&outcome.CommitHash,
			&outcome.ErrorKind,
			&outcome.ErrorDetail,
			&restartResults,
			&outcome.StartedAt,
			&outcome.CompletedAt,
		); err != nil {
			continue
		}
		outcome.Changed = changed != 0
		if err := json.Unmarshal([]byte(restartResults), &outcome.RestartResults); err != nil {
			outcome.RestartResults = nil
		}
		outcomes = append(outcomes, &outcome)
	}
	return outcomes, rows.Err()
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*api.Repository, error) {
	var repo api.Repository
	var isActive int
	var lastSyncTime sql.NullTime
	err := row.Scan(
		&repo.Name,
		&repo.URL,
		&repo.Branch,
		&repo.LocalPath,
		&repo.AuthMethod,
		&isActive,
		&repo.LastSyncStatus,
		&lastSyncTime,
		&repo.LastSyncCommit,
		&repo.LastSyncError,
		&repo.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepositoryNotFound
	}
	if err != nil {
		return nil, err
	}
	repo.IsActive = isActive != 0
	if lastSyncTime.Valid {
		repo.LastSyncTime = lastSyncTime.Time
	}
	return &repo, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

func isSQLiteConstraintErr(err error) bool {
	// modernc.org/sqlite reports constraint violations in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
