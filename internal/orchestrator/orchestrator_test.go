package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repodock/repodock/internal/api"
	"github.com/repodock/repodock/internal/gitsync"
	"github.com/repodock/repodock/internal/labels"
	"github.com/repodock/repodock/internal/store"
)

type fakeRepos struct {
	mu       sync.Mutex
	repos    map[string]*api.Repository
	recorded []string
}

func newFakeRepos(names ...string) *fakeRepos {
	f := &fakeRepos{repos: make(map[string]*api.Repository)}
	for _, name := range names {
		f.repos[name] = &api.Repository{
			Name:     name,
			URL:      "https://example.com/" + name + ".git",
			Branch:   "main",
			IsActive: true,
		}
	}
	return f
}

func (f *fakeRepos) ResolveActive(_ context.Context, name string) (*api.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, ok := f.repos[name]
	if !ok || !repo.IsActive {
		return nil, store.ErrRepositoryNotFound
	}
	clone := *repo
	return &clone, nil
}

func (f *fakeRepos) RecordSyncResult(_ context.Context, name, status string, _ time.Time, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.repos[name]; !ok {
		return store.ErrRepositoryNotFound
	}
	f.recorded = append(f.recorded, name+":"+status)
	return nil
}

func (f *fakeRepos) recordedResults() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.recorded))
	copy(out, f.recorded)
	return out
}

// fakeEngine returns a canned result per repository; an optional hold
// channel keeps Sync in flight until released.
type fakeEngine struct {
	mu      sync.Mutex
	results map[string]gitsync.SyncResult
	hold    chan struct{}
	calls   int
}

func (e *fakeEngine) Sync(_ context.Context, repo *api.Repository) gitsync.SyncResult {
	e.mu.Lock()
	e.calls++
	hold := e.hold
	result, ok := e.results[repo.Name]
	e.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if !ok {
		result = gitsync.SyncResult{Success: true, Changed: true, CommitHash: "abc123"}
	}
	return result
}

func (e *fakeEngine) syncCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fixture struct {
	orch      *Orchestrator
	repos     *fakeRepos
	engine    *fakeEngine
	inspector *fakeInspector
	sink      *fakeSink
	oplog     *LogWriter
}

func newFixture(t *testing.T, cfg Config, repoNames ...string) *fixture {
	t.Helper()
	logger := discardLogger()
	repos := newFakeRepos(repoNames...)
	engine := &fakeEngine{results: make(map[string]gitsync.SyncResult)}
	inspector := &fakeInspector{}
	sink := &fakeSink{}
	coordinator := NewCoordinator(inspector, labels.NewResolver(nil), logger, time.Second)
	oplog := NewLogWriter(sink, logger, 16)
	t.Cleanup(oplog.Close)
	return &fixture{
		orch:      New(repos, engine, coordinator, oplog, logger, cfg),
		repos:     repos,
		engine:    engine,
		inspector: inspector,
		sink:      sink,
		oplog:     oplog,
	}
}

func (f *fixture) waitForOutcomes(t *testing.T, n int) []*api.OperationOutcome {
	t.Helper()
	require.Eventually(t, func() bool { return f.sink.count() >= n },
		2*time.Second, 10*time.Millisecond)
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	out := make([]*api.OperationOutcome, len(f.sink.appended))
	copy(out, f.sink.appended)
	return out
}

func TestHandleUpdateSignalSuccess(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")
	f.inspector.containers = []api.ContainerDescriptor{
		dependentContainer("c1", "web", "svc-backend"),
	}

	outcome, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, api.SyncStatusSuccess, outcome.SyncStatus)
	assert.True(t, outcome.Changed)
	assert.Equal(t, "abc123", outcome.CommitHash)
	assert.Empty(t, outcome.ErrorKind)
	require.Len(t, outcome.RestartResults, 1)
	assert.True(t, outcome.RestartsSucceeded())
	assert.False(t, outcome.CompletedAt.Before(outcome.StartedAt))

	assert.Equal(t, []string{"svc-backend:success"}, f.repos.recordedResults())

	logged := f.waitForOutcomes(t, 1)
	assert.Same(t, outcome, logged[0])
}

func TestHandleUpdateSignalUnknownRepository(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")

	outcome, err := f.orch.HandleUpdateSignal(context.Background(), "nope", api.TriggerWebhook)
	assert.ErrorIs(t, err, ErrUnknownRepository)
	assert.Nil(t, outcome)

	// Rejected signals leave no trace.
	assert.Zero(t, f.engine.syncCalls())
	assert.Empty(t, f.inspector.restartedIDs())
	assert.Zero(t, f.sink.count())
}

func TestHandleUpdateSignalInactiveRepository(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")
	f.repos.repos["svc-backend"].IsActive = false

	_, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerManual)
	assert.ErrorIs(t, err, ErrUnknownRepository)
}

func TestHandleUpdateSignalSyncFailureSkipsRestarts(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")
	f.engine.results["svc-backend"] = gitsync.SyncResult{
		ErrorKind:   api.ErrorKindAuthenticationFailed,
		ErrorDetail: "authentication required",
	}
	f.inspector.containers = []api.ContainerDescriptor{
		dependentContainer("c1", "web", "svc-backend"),
	}

	outcome, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
	require.NoError(t, err, "a failed sync is still an accepted signal")

	assert.Equal(t, api.SyncStatusFailure, outcome.SyncStatus)
	assert.Equal(t, api.ErrorKindAuthenticationFailed, outcome.ErrorKind)
	assert.Empty(t, outcome.RestartResults)
	assert.Empty(t, f.inspector.restartedIDs(), "no restarts against a tree that did not update")

	assert.Equal(t, []string{"svc-backend:failure"}, f.repos.recordedResults())

	// The failed operation is still logged.
	logged := f.waitForOutcomes(t, 1)
	assert.Equal(t, api.SyncStatusFailure, logged[0].SyncStatus)
}

func TestHandleUpdateSignalRestartOnSyncFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RestartOnSyncFailure = true
	f := newFixture(t, cfg, "svc-backend")
	f.engine.results["svc-backend"] = gitsync.SyncResult{
		ErrorKind:   api.ErrorKindNetworkUnreachable,
		ErrorDetail: "no route to host",
	}
	f.inspector.containers = []api.ContainerDescriptor{
		dependentContainer("c1", "web", "svc-backend"),
	}

	outcome, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
	require.NoError(t, err)

	assert.Equal(t, api.SyncStatusFailure, outcome.SyncStatus)
	require.Len(t, outcome.RestartResults, 1, "restarts proceed against last-known-good code")
	assert.Equal(t, []string{"c1"}, f.inspector.restartedIDs())
}

func TestHandleUpdateSignalRestartFailureMarksOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")
	f.inspector.containers = []api.ContainerDescriptor{
		dependentContainer("c1", "web", "svc-backend"),
		dependentContainer("c2", "worker", "svc-backend"),
	}
	f.inspector.restartErr = map[string]error{"c2": errors.New("driver crashed")}

	outcome, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
	require.NoError(t, err)

	assert.Equal(t, api.SyncStatusSuccess, outcome.SyncStatus)
	assert.Equal(t, api.ErrorKindRestartFailed, outcome.ErrorKind)
	require.Len(t, outcome.RestartResults, 2)
	assert.False(t, outcome.RestartsSucceeded())
}

func TestHandleUpdateSignalRuntimeUnavailable(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")
	f.inspector.listErr = errors.New("cannot connect to the docker daemon")

	outcome, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
	require.NoError(t, err)

	assert.Equal(t, api.SyncStatusSuccess, outcome.SyncStatus, "sync result survives a discovery failure")
	assert.Equal(t, api.ErrorKindRuntimeUnavailable, outcome.ErrorKind)
	assert.Empty(t, outcome.RestartResults)

	logged := f.waitForOutcomes(t, 1)
	assert.Equal(t, api.ErrorKindRuntimeUnavailable, logged[0].ErrorKind)
}

func TestHandleUpdateSignalRejectsConcurrentSync(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-backend")
	f.engine.hold = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
		firstDone <- err
	}()

	require.Eventually(t, func() bool { return f.engine.syncCalls() == 1 },
		time.Second, time.Millisecond)

	_, err := f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(f.engine.hold)
	require.NoError(t, <-firstDone)

	// Only the accepted signal is logged.
	f.waitForOutcomes(t, 1)
	assert.Equal(t, 1, f.sink.count())
}

func TestHandleUpdateSignalQueuesConcurrentSync(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSyncs = true
	f := newFixture(t, cfg, "svc-backend")
	f.engine.hold = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
		}(i)
	}

	// One sync in flight, the other waiting on the token.
	require.Eventually(t, func() bool { return f.engine.syncCalls() == 1 },
		time.Second, time.Millisecond)
	assert.Zero(t, f.sink.count())

	close(f.engine.hold)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 2, f.engine.syncCalls(), "queued signal runs after the first completes")
	f.waitForOutcomes(t, 2)
}

func TestHandleUpdateSignalQueueHonorsCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSyncs = true
	f := newFixture(t, cfg, "svc-backend")
	f.engine.hold = make(chan struct{})

	go f.orch.HandleUpdateSignal(context.Background(), "svc-backend", api.TriggerWebhook)
	require.Eventually(t, func() bool { return f.engine.syncCalls() == 1 },
		time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.orch.HandleUpdateSignal(ctx, "svc-backend", api.TriggerManual)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(f.engine.hold)
	f.waitForOutcomes(t, 1)
}

func TestHandleUpdateSignalIndependentRepositoriesRunInParallel(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "svc-a", "svc-b")
	f.engine.hold = make(chan struct{})

	var wg sync.WaitGroup
	for _, name := range []string{"svc-a", "svc-b"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			f.orch.HandleUpdateSignal(context.Background(), name, api.TriggerWebhook)
		}(name)
	}

	// Both syncs enter the engine concurrently: neither repository's
	// token blocks the other.
	require.Eventually(t, func() bool { return f.engine.syncCalls() == 2 },
		time.Second, time.Millisecond)

	close(f.engine.hold)
	wg.Wait()
	f.waitForOutcomes(t, 2)
}

func TestRepoLocksTryAcquire(t *testing.T) {
	locks := newRepoLocks()

	release, ok := locks.tryAcquire("svc-a")
	require.True(t, ok)

	_, ok = locks.tryAcquire("svc-a")
	assert.False(t, ok, "token is exclusive per name")

	releaseB, ok := locks.tryAcquire("svc-b")
	assert.True(t, ok, "different names do not contend")
	releaseB()

	release()
	release2, ok := locks.tryAcquire("svc-a")
	assert.True(t, ok, "token is reusable after release")
	release2()
}
