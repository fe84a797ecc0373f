// Package gitsync updates repository working trees from their remotes.
//
// The working tree is treated as a disposable deployment artifact: the
// engine always forces the checkout to the remote tip and discards any
// local modifications. It never retries; retry policy belongs to callers.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/repodock/repodock/internal/api"
)

const defaultSyncTimeout = 2 * time.Minute

// AuthProvider resolves transport credentials for a repository. Public
// repositories resolve to a nil method.
type AuthProvider interface {
	AuthMethod(ctx context.Context, repo *api.Repository) (transport.AuthMethod, error)
}

// SyncResult reports one sync attempt.
type SyncResult struct {
	Success       bool
	Changed       bool
	CommitHash    string
	CommitSubject string
	ErrorKind     string
	ErrorDetail   string
}

// Engine performs clone/fetch/checkout against repository working trees.
type Engine struct {
	ReposDir string
	Timeout  time.Duration
	Auth     AuthProvider
	Logger   *slog.Logger
}

// NewEngine creates a sync engine storing working trees under reposDir.
func NewEngine(reposDir string, timeout time.Duration, auth AuthProvider, logger *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &Engine{
		ReposDir: reposDir,
		Timeout:  timeout,
		Auth:     auth,
		Logger:   logger,
	}
}

// LocalPath returns the working tree directory for a repository, deriving
// it from the repository name when no explicit path is configured.
func (e *Engine) LocalPath(repo *api.Repository) string {
	if strings.TrimSpace(repo.LocalPath) != "" {
		return repo.LocalPath
	}
	return filepath.Join(e.ReposDir, repo.Name)
}

// Sync brings the repository working tree to the remote branch tip. A
// missing working tree is cloned; an existing one is fetched and force
// checked out. Calling Sync twice with no upstream change is a no-op with
// Changed=false.
func (e *Engine) Sync(ctx context.Context, repo *api.Repository) SyncResult {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	hash, subject, changed, err := e.sync(ctx, repo)
	if err != nil {
		classified := Classify(err)
		e.Logger.Error("Repository sync failed", "repo", repo.Name, "error", classified)
		return SyncResult{
			Success:     false,
			ErrorKind:   ErrorKind(classified),
			ErrorDetail: classified.Error(),
		}
	}

	e.Logger.Info("Repository synced", "repo", repo.Name, "commit", hash, "changed", changed)
	return SyncResult{
		Success:       true,
		Changed:       changed,
		CommitHash:    hash,
		CommitSubject: subject,
	}
}

func (e *Engine) sync(ctx context.Context, repo *api.Repository) (hash, subject string, changed bool, err error) {
	repoPath := e.LocalPath(repo)

	var auth transport.AuthMethod
	if e.Auth != nil {
		auth, err = e.Auth.AuthMethod(ctx, repo)
		if err != nil {
			return "", "", false, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
	}

	var gitRepo *git.Repository
	fresh := false

	if _, statErr := os.Stat(filepath.Join(repoPath, ".git")); os.IsNotExist(statErr) {
		e.Logger.Info("Cloning repository", "repo", repo.Name, "url", repo.URL, "path", repoPath)
		if mkErr := os.MkdirAll(filepath.Dir(repoPath), 0o755); mkErr != nil {
			return "", "", false, fmt.Errorf("create repos dir: %w", mkErr)
		}
		gitRepo, err = git.PlainCloneContext(ctx, repoPath, false, &git.CloneOptions{
			URL:  repo.URL,
			Auth: auth,
		})
		fresh = true
	} else {
		gitRepo, err = git.PlainOpen(repoPath)
	}
	if err != nil {
		return "", "", false, fmt.Errorf("git error: %w", err)
	}

	if !fresh {
		err = gitRepo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: "origin",
			RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
			Auth:       auth,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return "", "", false, fmt.Errorf("fetch error: %w", err)
		}
	}

	branch := repo.Branch
	if branch == "" {
		branch = "main"
	}

	remoteRefName := plumbing.NewRemoteReferenceName("origin", branch)
	remoteRef, refErr := gitRepo.Reference(remoteRefName, true)
	if refErr != nil {
		return "", "", false, fmt.Errorf("remote branch %q not found: %w", branch, refErr)
	}

	var before plumbing.Hash
	if head, headErr := gitRepo.Head(); headErr == nil {
		before = head.Hash()
	}

	worktree, err := gitRepo.Worktree()
	if err != nil {
		return "", "", false, fmt.Errorf("worktree error: %w", err)
	}
	// Local-only changes are discarded here on purpose.
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return "", "", false, fmt.Errorf("checkout error: %w", err)
	}

	hash = remoteRef.Hash().String()
	if commit, commitErr := gitRepo.CommitObject(remoteRef.Hash()); commitErr == nil {
		subject = commitSubject(commit.Message)
	}
	changed = fresh || before != remoteRef.Hash()
	return hash, subject, changed, nil
}

func commitSubject(message string) string {
	for _, line := range strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
