package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repodock/repodock/internal/api"
	"github.com/repodock/repodock/internal/labels"
)

// fakeInspector is an in-memory container runtime.
type fakeInspector struct {
	mu         sync.Mutex
	containers []api.ContainerDescriptor
	listErr    error
	restartErr map[string]error
	restarted  []string
}

func (f *fakeInspector) ListAll(_ context.Context) ([]api.ContainerDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]api.ContainerDescriptor, len(f.containers))
	copy(out, f.containers)
	return out, nil
}

func (f *fakeInspector) Restart(ctx context.Context, containerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, containerID)
	if err, ok := f.restartErr[containerID]; ok {
		return err
	}
	return nil
}

func (f *fakeInspector) restartedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.restarted))
	copy(out, f.restarted)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dependentContainer(id, name, repo string) api.ContainerDescriptor {
	return api.ContainerDescriptor{
		ID:     id,
		Name:   name,
		Image:  "example/" + name + ":latest",
		Status: "running",
		Labels: map[string]string{"restart-after": repo},
	}
}

func TestRestartDependentsPartialFailure(t *testing.T) {
	inspector := &fakeInspector{
		containers: []api.ContainerDescriptor{
			dependentContainer("c2", "beta", "svc-backend"),
			dependentContainer("c1", "alpha", "svc-backend"),
			dependentContainer("c3", "gamma", "svc-backend"),
			dependentContainer("c4", "other", "svc-worker"),
		},
		restartErr: map[string]error{"c2": errors.New("driver crashed")},
	}
	c := NewCoordinator(inspector, labels.NewResolver(nil), discardLogger(), 0)

	results, err := c.RestartDependents(context.Background(), "svc-backend")
	require.NoError(t, err)
	require.Len(t, results, 3, "one result per matched container")

	// Stable order by container name.
	assert.Equal(t, "alpha", results[0].ContainerName)
	assert.Equal(t, "beta", results[1].ContainerName)
	assert.Equal(t, "gamma", results[2].ContainerName)

	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].ErrorKind)
	assert.False(t, results[1].Success)
	assert.Equal(t, api.ErrorKindRestartFailed, results[1].ErrorKind)
	assert.Contains(t, results[1].ErrorDetail, "driver crashed")
	assert.True(t, results[2].Success, "failure of one container must not stop the rest")

	// The non-dependent container is untouched.
	assert.NotContains(t, inspector.restartedIDs(), "c4")
}

func TestRestartDependentsZeroMatches(t *testing.T) {
	inspector := &fakeInspector{
		containers: []api.ContainerDescriptor{
			{ID: "c1", Name: "db", Labels: map[string]string{"app": "database"}},
		},
	}
	c := NewCoordinator(inspector, labels.NewResolver(nil), discardLogger(), 0)

	results, err := c.RestartDependents(context.Background(), "svc-backend")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results, "no dependents is a success, not an error")
}

func TestRestartDependentsIncludesStoppedContainers(t *testing.T) {
	stopped := dependentContainer("c1", "alpha", "svc-backend")
	stopped.Status = "exited"
	inspector := &fakeInspector{containers: []api.ContainerDescriptor{stopped}}
	c := NewCoordinator(inspector, labels.NewResolver(nil), discardLogger(), 0)

	results, err := c.RestartDependents(context.Background(), "svc-backend")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, []string{"c1"}, inspector.restartedIDs())
}

func TestRestartDependentsRuntimeUnavailable(t *testing.T) {
	inspector := &fakeInspector{listErr: errors.New("cannot connect to the docker daemon")}
	c := NewCoordinator(inspector, labels.NewResolver(nil), discardLogger(), 0)

	results, err := c.RestartDependents(context.Background(), "svc-backend")
	assert.Error(t, err)
	assert.Nil(t, results)
}

func TestRestartDependentsCancellationStopsFurtherAttempts(t *testing.T) {
	var containers []api.ContainerDescriptor
	for i := 0; i < 5; i++ {
		containers = append(containers, dependentContainer(
			fmt.Sprintf("c%d", i), fmt.Sprintf("svc-%d", i), "svc-backend"))
	}
	inspector := &fakeInspector{containers: containers}
	c := NewCoordinator(inspector, labels.NewResolver(nil), discardLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := c.RestartDependents(ctx, "svc-backend")
	require.NoError(t, err)
	assert.Empty(t, results, "no restarts attempted after cancellation")
	assert.Empty(t, inspector.restartedIDs())
}

func TestDiscoverTargets(t *testing.T) {
	inspector := &fakeInspector{
		containers: []api.ContainerDescriptor{
			dependentContainer("c1", "alpha", "svc-backend,svc-worker"),
			{ID: "c2", Name: "db", Labels: map[string]string{"app": "database"}},
		},
	}
	c := NewCoordinator(inspector, labels.NewResolver(nil), discardLogger(), 0)

	targets, err := c.DiscoverTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, []string{"svc-backend", "svc-worker"}, targets[0].Repositories)
	assert.Nil(t, targets[1].Repositories)
}
