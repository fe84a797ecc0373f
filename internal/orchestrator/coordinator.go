package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/repodock/repodock/internal/api"
	"github.com/repodock/repodock/internal/labels"
)

// Inspector is the container runtime surface the coordinator needs.
type Inspector interface {
	ListAll(ctx context.Context) ([]api.ContainerDescriptor, error)
	Restart(ctx context.Context, containerID string) error
}

// Coordinator discovers the containers that depend on a repository and
// restarts them one at a time.
type Coordinator struct {
	Inspector      Inspector
	Resolver       *labels.Resolver
	Logger         *slog.Logger
	RestartTimeout time.Duration
}

// NewCoordinator creates a restart coordinator.
func NewCoordinator(inspector Inspector, resolver *labels.Resolver, logger *slog.Logger, restartTimeout time.Duration) *Coordinator {
	if restartTimeout <= 0 {
		restartTimeout = 30 * time.Second
	}
	return &Coordinator{
		Inspector:      inspector,
		Resolver:       resolver,
		Logger:         logger,
		RestartTimeout: restartTimeout,
	}
}

// RestartDependents restarts every container whose labels declare a
// dependency on repositoryName. Restarts run sequentially in a stable order
// (container name, then id) so runs are reproducible and the runtime is
// never flooded. One failed restart never aborts the rest; stopped
// containers are restarted like running ones. Zero matches is a success
// with an empty result list.
//
// A discovery failure (unreachable runtime) is returned as an error; restart
// failures are reported per container. Cancellation stops further attempts
// and returns the results accumulated so far.
func (c *Coordinator) RestartDependents(ctx context.Context, repositoryName string) ([]api.ContainerRestartResult, error) {
	containers, err := c.Inspector.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var matches []api.ContainerDescriptor
	for _, container := range containers {
		if c.Resolver.Matches(container.Labels, repositoryName) {
			matches = append(matches, container)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name != matches[j].Name {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) == 0 {
		c.Logger.Info("No dependent containers found", "repo", repositoryName)
		return []api.ContainerRestartResult{}, nil
	}

	results := make([]api.ContainerRestartResult, 0, len(matches))
	for _, match := range matches {
		if ctx.Err() != nil {
			c.Logger.Warn("Restart pass cancelled", "repo", repositoryName, "remaining", len(matches)-len(results))
			break
		}

		result := api.ContainerRestartResult{
			ContainerID:   match.ID,
			ContainerName: match.Name,
		}

		restartCtx, cancel := context.WithTimeout(ctx, c.RestartTimeout)
		err := c.Inspector.Restart(restartCtx, match.ID)
		cancel()

		if err != nil {
			result.ErrorKind = api.ErrorKindRestartFailed
			result.ErrorDetail = err.Error()
			c.Logger.Error("Failed to restart container", "repo", repositoryName, "container", match.Name, "id", match.ID, "error", err)
		} else {
			result.Success = true
			c.Logger.Info("Restarted container", "repo", repositoryName, "container", match.Name, "id", match.ID)
		}
		results = append(results, result)
	}

	return results, nil
}

// RestartByID restarts one container directly, outside any sync run.
func (c *Coordinator) RestartByID(ctx context.Context, containerID string) error {
	restartCtx, cancel := context.WithTimeout(ctx, c.RestartTimeout)
	defer cancel()
	if err := c.Inspector.Restart(restartCtx, containerID); err != nil {
		return err
	}
	c.Logger.Info("Restarted container", "id", containerID)
	return nil
}

// DiscoverTargets lists every container together with the repositories it
// declares a dependency on. Used by the read-only discovery API.
func (c *Coordinator) DiscoverTargets(ctx context.Context) ([]api.RestartTarget, error) {
	containers, err := c.Inspector.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	targets := make([]api.RestartTarget, 0, len(containers))
	for _, container := range containers {
		targets = append(targets, api.RestartTarget{
			Container:    container,
			Repositories: c.Resolver.MatchedNames(container.Labels),
		})
	}
	return targets, nil
}
