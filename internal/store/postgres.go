package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repodock/repodock/internal/api"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS repositories (
			name TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT 'main',
			local_path TEXT NOT NULL DEFAULT '',
			auth_method TEXT NOT NULL DEFAULT 'public',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_sync_status TEXT NOT NULL DEFAULT 'never',
			last_sync_time TIMESTAMPTZ,
			last_sync_commit TEXT NOT NULL DEFAULT '',
			last_sync_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS repository_credentials (
			repository_name TEXT PRIMARY KEY REFERENCES repositories(name) ON DELETE CASCADE,
			deploy_key_ciphertext BYTEA NOT NULL,
			deploy_key_nonce BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operation_logs (
			id BIGSERIAL PRIMARY KEY,
			operation_id TEXT NOT NULL DEFAULT '',
			repository_name TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			sync_status TEXT NOT NULL,
			changed BOOLEAN NOT NULL DEFAULT FALSE,
			commit_hash TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			error_detail TEXT NOT NULL DEFAULT '',
			restart_results JSONB NOT NULL DEFAULT '[]',
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateRepository(ctx context.Context, repo *api.Repository) error {
	query := `
	INSERT INTO repositories (name, url, branch, local_path, auth_method, is_active, last_sync_status, last_sync_time, last_sync_commit, last_sync_error, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		repo.Name,
		repo.URL,
		repo.Branch,
		repo.LocalPath,
		repo.AuthMethod,
		repo.IsActive,
		repo.LastSyncStatus,
		pgNullableTime(repo.LastSyncTime),
		repo.LastSyncCommit,
		repo.LastSyncError,
		repo.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrRepositoryExists
	}
	return err
}

func (s *PostgresStore) GetRepository(ctx context.Context, name string) (*api.Repository, error) {
	query := `SELECT name, url, branch, local_path, auth_method, is_active, last_sync_status, last_sync_time, last_sync_commit, last_sync_error, created_at FROM repositories WHERE name = $1`
	return s.scanRepository(s.pool.QueryRow(ctx, query, name))
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*api.Repository, error) {
	query := `SELECT name, url, branch, local_path, auth_method, is_active, last_sync_status, last_sync_time, last_sync_commit, last_sync_error, created_at FROM repositories ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*api.Repository
	for rows.Next() {
		repo, err := s.scanRepository(rows)
		if err != nil {
			continue
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM repositories WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSyncResult(ctx context.Context, name, status string, at time.Time, commit, errorDetail string) error {
	query := `UPDATE repositories SET last_sync_status = $1, last_sync_time = $2, last_sync_commit = $3, last_sync_error = $4 WHERE name = $5`
	tag, err := s.pool.Exec(ctx, query, status, at, commit, errorDetail, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertRepositoryCredential(ctx context.Context, credential *RepositoryCredential) error {
	query := `
	INSERT INTO repository_credentials (repository_name, deploy_key_ciphertext, deploy_key_nonce)
	VALUES ($1, $2, $3)
	ON CONFLICT (repository_name) DO UPDATE SET
		deploy_key_ciphertext = EXCLUDED.deploy_key_ciphertext,
		deploy_key_nonce = EXCLUDED.deploy_key_nonce
	`
	_, err := s.pool.Exec(ctx, query, credential.RepositoryName, credential.DeployKeyCiphertext, credential.DeployKeyNonce)
	return err
}

func (s *PostgresStore) GetRepositoryCredential(ctx context.Context, name string) (*RepositoryCredential, error) {
	query := `SELECT repository_name, deploy_key_ciphertext, deploy_key_nonce FROM repository_credentials WHERE repository_name = $1`
	row := s.pool.QueryRow(ctx, query, name)

	var credential RepositoryCredential
	err := row.Scan(&credential.RepositoryName, &credential.DeployKeyCiphertext, &credential.DeployKeyNonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

func (s *PostgresStore) DeleteRepositoryCredential(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM repository_credentials WHERE repository_name = $1`, name)
	return err
}

func (s *PostgresStore) AppendOperation(ctx context.Context, outcome *api.OperationOutcome) error {
	restartResults, err := json.Marshal(outcome.RestartResults)
	if err != nil {
		return fmt.Errorf("failed to encode restart results: %w", err)
	}
	if outcome.RestartResults == nil {
		restartResults = []byte("[]")
	}

	query := `
	INSERT INTO operation_logs (operation_id, repository_name, trigger_kind, sync_status, changed, commit_hash, error_kind, error_detail, restart_results, started_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.pool.Exec(
		ctx,
		query,
		outcome.ID,
		outcome.RepositoryName,
		outcome.Trigger,
		outcome.SyncStatus,
		outcome.Changed,
		outcome.CommitHash,
		outcome.ErrorKind,
		outcome.ErrorDetail,
		string(restartResults),
		outcome.StartedAt,
		outcome.CompletedAt,
	)
	return err
}

func (s *PostgresStore) ListOperations(ctx context.Context, limit int) ([]*api.OperationOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT operation_id, repository_name, trigger_kind, sync_status, changed, commit_hash, error_kind, error_detail, restart_results, started_at, completed_at FROM operation_logs ORDER BY id DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*api.OperationOutcome
	for rows.Next() {
		var outcome api.OperationOutcome
		var restartResults []byte
		if err := rows.Scan(
			&outcome.ID,
			&outcome.RepositoryName,
			&outcome.Trigger,
			&outcome.SyncStatus,
			&outcome.Changed,
			&outcome.CommitHash,
			&outcome.ErrorKind,
			&outcome.ErrorDetail,
			&restartResults,
			&outcome.StartedAt,
			&outcome.CompletedAt,
		); err != nil {
			continue
		}
		if err := json.Unmarshal(restartResults, &outcome.RestartResults); err != nil {
			outcome.RestartResults = nil
		}
		outcomes = append(outcomes, &outcome)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

type pgRowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanRepository(row pgRowScanner) (*api.Repository, error) {
	var repo api.Repository
	var lastSyncTime *time.Time
	err := row.Scan(
		&repo.Name,
		&repo.URL,
		&repo.Branch,
		&repo.LocalPath,
		&repo.AuthMethod,
		&repo.IsActive,
		&repo.LastSyncStatus,
		&lastSyncTime,
		&repo.LastSyncCommit,
		&repo.LastSyncError,
		&repo.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRepositoryNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSyncTime != nil {
		repo.LastSyncTime = *lastSyncTime
	}
	return &repo, nil
}

func pgNullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}
