package store

import (
	"context"
	"errors"
	"time"

	"github.com/repodock/repodock/internal/api"
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrRepositoryExists   = errors.New("repository already exists")
	ErrCredentialNotFound = errors.New("repository credential not found")
)

// Store defines the interface for data persistence: the repository registry
// and the append-only operation log.
type Store interface {
	CreateRepository(ctx context.Context, repo *api.Repository) error
	GetRepository(ctx context.Context, name string) (*api.Repository, error)
	ListRepositories(ctx context.Context) ([]*api.Repository, error)
	DeleteRepository(ctx context.Context, name string) error
	UpdateSyncResult(ctx context.Context, name, status string, at time.Time, commit, errorDetail string) error

	UpsertRepositoryCredential(ctx context.Context, credential *RepositoryCredential) error
	GetRepositoryCredential(ctx context.Context, name string) (*RepositoryCredential, error)
	DeleteRepositoryCredential(ctx context.Context, name string) error

	AppendOperation(ctx context.Context, outcome *api.OperationOutcome) error
	ListOperations(ctx context.Context, limit int) ([]*api.OperationOutcome, error)

	Close()
}

// RepositoryCredential stores encrypted repository deploy keys.
type RepositoryCredential struct {
	RepositoryName      string
	DeployKeyCiphertext []byte
	DeployKeyNonce      []byte
}
