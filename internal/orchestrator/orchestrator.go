// Package orchestrator sequences sync → discover → restart → log for each
// incoming repository-update signal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/repodock/repodock/internal/api"
	"github.com/repodock/repodock/internal/gitsync"
	"github.com/repodock/repodock/internal/store"
)

var (
	// ErrUnknownRepository rejects signals naming unregistered or
	// inactive repositories. No outcome is logged for these.
	ErrUnknownRepository = errors.New("unknown or inactive repository")
	// ErrSyncInProgress rejects a second signal for a repository whose
	// sync is still in flight (reject mode only).
	ErrSyncInProgress = errors.New("sync already in progress for this repository")
)

// Repositories is the repository-store surface the orchestrator needs.
type Repositories interface {
	ResolveActive(ctx context.Context, name string) (*api.Repository, error)
	RecordSyncResult(ctx context.Context, name, status string, at time.Time, commit, errorDetail string) error
}

// Engine performs the working-tree update for one repository.
type Engine interface {
	Sync(ctx context.Context, repo *api.Repository) gitsync.SyncResult
}

// Orchestrator owns the per-repository exclusion tokens and drives one
// operation per accepted signal. Signals for different repositories run
// fully in parallel.
type Orchestrator struct {
	repos       Repositories
	engine      Engine
	coordinator *Coordinator
	oplog       *LogWriter
	logger      *slog.Logger
	cfg         Config
	locks       *repoLocks
}

// New creates an orchestrator.
func New(repos Repositories, engine Engine, coordinator *Coordinator, oplog *LogWriter, logger *slog.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		repos:       repos,
		engine:      engine,
		coordinator: coordinator,
		oplog:       oplog,
		logger:      logger,
		cfg:         cfg,
		locks:       newRepoLocks(),
	}
}

// HandleUpdateSignal runs one orchestration for the named repository:
// resolve, sync, discover dependents, restart them, log the outcome.
//
// Exactly one OperationOutcome is appended to the log per accepted signal,
// even on total failure. Rejected signals (unknown repository, sync already
// in flight) return an error and leave no trace.
func (o *Orchestrator) HandleUpdateSignal(ctx context.Context, repositoryName, trigger string) (*api.OperationOutcome, error) {
	repo, err := o.repos.ResolveActive(ctx, repositoryName)
	if err != nil {
		if errors.Is(err, store.ErrRepositoryNotFound) {
			o.logger.Warn("Rejecting signal for unknown repository", "repo", repositoryName, "trigger", trigger)
			return nil, fmt.Errorf("%w: %q", ErrUnknownRepository, repositoryName)
		}
		return nil, fmt.Errorf("resolve repository %q: %w", repositoryName, err)
	}

	release, err := o.acquire(ctx, repo.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	outcome := &api.OperationOutcome{
		ID:             uuid.NewString(),
		RepositoryName: repo.Name,
		Trigger:        trigger,
		RestartResults: []api.ContainerRestartResult{},
		StartedAt:      time.Now().UTC(),
	}
	// The outcome reaches the log no matter how the run ends.
	defer func() {
		outcome.CompletedAt = time.Now().UTC()
		o.oplog.Enqueue(outcome)
	}()

	o.logger.Info("Processing update signal", "repo", repo.Name, "trigger", trigger)

	syncResult := o.engine.Sync(ctx, repo)
	o.recordSyncResult(repo.Name, syncResult)

	outcome.Changed = syncResult.Changed
	outcome.CommitHash = syncResult.CommitHash
	if syncResult.Success {
		outcome.SyncStatus = api.SyncStatusSuccess
	} else {
		outcome.SyncStatus = api.SyncStatusFailure
		outcome.ErrorKind = syncResult.ErrorKind
		outcome.ErrorDetail = syncResult.ErrorDetail
	}

	if !syncResult.Success && !o.cfg.RestartOnSyncFailure {
		o.logger.Warn("Skipping restarts after failed sync", "repo", repo.Name, "error_kind", syncResult.ErrorKind)
		return outcome, nil
	}

	results, restartErr := o.coordinator.RestartDependents(ctx, repo.Name)
	if results != nil {
		outcome.RestartResults = results
	}
	if restartErr != nil {
		// Discovery failed outright; individual restart failures are
		// already inside results.
		if outcome.ErrorKind == "" {
			outcome.ErrorKind = api.ErrorKindRuntimeUnavailable
			outcome.ErrorDetail = restartErr.Error()
		}
		o.logger.Error("Restart discovery failed", "repo", repo.Name, "error", restartErr)
		return outcome, nil
	}

	if outcome.ErrorKind == "" && !outcome.RestartsSucceeded() {
		outcome.ErrorKind = api.ErrorKindRestartFailed
	}

	o.logger.Info("Update signal processed",
		"repo", repo.Name,
		"sync_status", outcome.SyncStatus,
		"changed", outcome.Changed,
		"restarted", len(outcome.RestartResults),
	)
	return outcome, nil
}

func (o *Orchestrator) acquire(ctx context.Context, name string) (func(), error) {
	if o.cfg.QueueSyncs {
		release, err := o.locks.acquire(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("waiting for in-flight sync of %q: %w", name, err)
		}
		return release, nil
	}

	release, ok := o.locks.tryAcquire(name)
	if !ok {
		o.logger.Warn("Rejecting concurrent signal", "repo", name)
		return nil, fmt.Errorf("%w: %q", ErrSyncInProgress, name)
	}
	return release, nil
}

func (o *Orchestrator) recordSyncResult(name string, result gitsync.SyncResult) {
	status := api.SyncStatusFailure
	if result.Success {
		status = api.SyncStatusSuccess
	}

	// Repository deletion mid-flight is tolerated: the record update just
	// misses and the operation still completes and logs.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := o.repos.RecordSyncResult(ctx, name, status, time.Now().UTC(), result.CommitHash, result.ErrorDetail)
	if err != nil && !errors.Is(err, store.ErrRepositoryNotFound) {
		o.logger.Warn("Failed to record sync result", "repo", name, "error", err)
	}
}
