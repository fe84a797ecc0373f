// Package controller exposes the repository registry and the HTTP surface
// of the server.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/repodock/repodock/internal/api"
	"github.com/repodock/repodock/internal/credentials"
	"github.com/repodock/repodock/internal/repoauth"
	"github.com/repodock/repodock/internal/store"
)

const maxRepoNameLength = 100

// Registry manages registered repositories and their credentials. It is the
// orchestrator's repository source and the sync engine's auth provider.
type Registry struct {
	store    store.Store
	creds    *credentials.Service
	logger   *slog.Logger
	reposDir string
}

// NewRegistry creates a registry backed by the given store. creds may be nil
// when credential encryption is not configured; registering deploy-key
// repositories then fails with a clear error.
func NewRegistry(st store.Store, creds *credentials.Service, logger *slog.Logger, reposDir string) *Registry {
	return &Registry{
		store:    st,
		creds:    creds,
		logger:   logger,
		reposDir: reposDir,
	}
}

// ValidateName checks that a repository name is usable as a label value and
// a directory name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name is required")
	}
	if len(name) > maxRepoNameLength {
		return fmt.Errorf("repository name exceeds %d characters", maxRepoNameLength)
	}
	if strings.ContainsAny(name, "/\\ \t\n,") || name == "." || name == ".." {
		return fmt.Errorf("repository name %q contains invalid characters", name)
	}
	return nil
}

// Add validates and registers a repository, encrypting and storing its
// deploy key when one is supplied.
func (r *Registry) Add(ctx context.Context, req *api.RegisterRepositoryRequest) (*api.Repository, error) {
	name := strings.TrimSpace(req.Name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	method := repoauth.NormalizeMethod(req.AuthMethod)
	if method == "" {
		return nil, fmt.Errorf("unsupported auth method %q", req.AuthMethod)
	}
	deployKey := repoauth.NormalizeDeployKey(req.DeployKey)
	if err := repoauth.ValidateCreateInput(req.URL, method, deployKey); err != nil {
		return nil, err
	}
	if method == repoauth.MethodDeployKey && !r.creds.Enabled() {
		return nil, fmt.Errorf("deploy key repositories require credential encryption: set %s", credentials.EncryptionKeyEnv)
	}

	branch := strings.TrimSpace(req.Branch)
	if branch == "" {
		branch = "main"
	}

	repo := &api.Repository{
		Name:           name,
		URL:            strings.TrimSpace(req.URL),
		Branch:         branch,
		LocalPath:      filepath.Join(r.reposDir, name),
		AuthMethod:     method,
		IsActive:       true,
		LastSyncStatus: api.SyncStatusNever,
		CreatedAt:      time.Now().UTC(),
	}

	if err := r.store.CreateRepository(ctx, repo); err != nil {
		return nil, err
	}

	if method == repoauth.MethodDeployKey {
		ciphertext, nonce, err := r.creds.Encrypt([]byte(deployKey))
		if err == nil {
			err = r.store.UpsertRepositoryCredential(ctx, &store.RepositoryCredential{
				RepositoryName:      name,
				DeployKeyCiphertext: ciphertext,
				DeployKeyNonce:      nonce,
			})
		}
		if err != nil {
			// Roll back the half-registered repository so a retry can
			// start clean.
			if delErr := r.store.DeleteRepository(ctx, name); delErr != nil {
				r.logger.Error("Failed to roll back repository after credential error", "repo", name, "error", delErr)
			}
			return nil, fmt.Errorf("storing deploy key for %q: %w", name, err)
		}
	}

	r.logger.Info("Registered repository", "repo", name, "url", repo.URL, "branch", branch, "auth", method)
	return repo, nil
}

// Get returns a repository by name.
func (r *Registry) Get(ctx context.Context, name string) (*api.Repository, error) {
	return r.store.GetRepository(ctx, name)
}

// List returns every registered repository.
func (r *Registry) List(ctx context.Context) ([]*api.Repository, error) {
	return r.store.ListRepositories(ctx)
}

// Delete removes a repository. Its credential rows are removed by the
// store's cascade. The working tree on disk is left in place.
func (r *Registry) Delete(ctx context.Context, name string) error {
	if err := r.store.DeleteRepository(ctx, name); err != nil {
		return err
	}
	r.logger.Info("Deleted repository", "repo", name)
	return nil
}

// ResolveActive returns the named repository if it exists and is active.
// Inactive repositories are indistinguishable from missing ones, so webhook
// probes cannot tell which names are registered.
func (r *Registry) ResolveActive(ctx context.Context, name string) (*api.Repository, error) {
	repo, err := r.store.GetRepository(ctx, name)
	if err != nil {
		return nil, err
	}
	if !repo.IsActive {
		return nil, store.ErrRepositoryNotFound
	}
	return repo, nil
}

// RecordSyncResult persists the last-sync fields after an attempt.
func (r *Registry) RecordSyncResult(ctx context.Context, name, status string, at time.Time, commit, errorDetail string) error {
	return r.store.UpdateSyncResult(ctx, name, status, at, commit, errorDetail)
}

// AuthMethod returns the transport auth for cloning/fetching repo. Public
// repositories get nil auth.
func (r *Registry) AuthMethod(ctx context.Context, repo *api.Repository) (transport.AuthMethod, error) {
	if repo.AuthMethod != repoauth.MethodDeployKey {
		return nil, nil
	}

	credential, err := r.store.GetRepositoryCredential(ctx, repo.Name)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return nil, fmt.Errorf("repository %q uses deploy key auth but has no stored key", repo.Name)
		}
		return nil, err
	}

	deployKey, err := r.creds.Decrypt(credential.DeployKeyCiphertext, credential.DeployKeyNonce)
	if err != nil {
		return nil, fmt.Errorf("decrypting deploy key for %q: %w", repo.Name, err)
	}
	return repoauth.PublicKeysAuth(deployKey)
}
