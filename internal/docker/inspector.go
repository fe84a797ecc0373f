// Package docker adapts the Docker Engine API to the two operations the
// orchestration core needs: list all containers with labels, restart by id.
package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/repodock/repodock/internal/api"
)

// ErrRuntimeUnavailable marks an unreachable container runtime socket/API.
// It is recoverable: the caller records a failed outcome and carries on.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// ErrContainerNotFound marks a restart target that no longer exists.
var ErrContainerNotFound = errors.New("container not found")

const defaultStopTimeout = 10 * time.Second

// Inspector queries and restarts containers through a shared Docker client.
// The client is safe for concurrent use across repositories.
type Inspector struct {
	cli         *client.Client
	stopTimeout time.Duration
}

// NewInspector creates an Inspector with a Docker client from the environment.
func NewInspector() (*Inspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewInspectorFromClient(cli), nil
}

// NewInspectorFromClient wraps an existing Docker client.
func NewInspectorFromClient(cli *client.Client) *Inspector {
	return &Inspector{cli: cli, stopTimeout: defaultStopTimeout}
}

// ListAll returns descriptors for every container, including stopped and
// exited ones. Restart targeting must see non-running containers too;
// whether they are actually restarted is the coordinator's call.
func (i *Inspector) ListAll(ctx context.Context) ([]api.ContainerDescriptor, error) {
	containers, err := i.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, wrapRuntimeErr("list containers", err)
	}

	out := make([]api.ContainerDescriptor, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		labels := make(map[string]string, len(c.Labels))
		for key, value := range c.Labels {
			labels[key] = value
		}

		out = append(out, api.ContainerDescriptor{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			Status: c.State,
			Labels: labels,
		})
	}
	return out, nil
}

// Restart restarts a single container, best effort, with a bounded stop
// timeout. No internal retry.
func (i *Inspector) Restart(ctx context.Context, containerID string) error {
	timeout := int(i.stopTimeout.Seconds())
	err := i.cli.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %q", ErrContainerNotFound, containerID)
		}
		return wrapRuntimeErr(fmt.Sprintf("restart container %q", containerID), err)
	}
	return nil
}

// Close releases the underlying client.
func (i *Inspector) Close() error {
	return i.cli.Close()
}

func wrapRuntimeErr(op string, err error) error {
	if client.IsErrConnectionFailed(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrRuntimeUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
