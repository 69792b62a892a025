package controller

import (
	"context"
	"fmt"
	"log/slog"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/chronos-ops/redeploy/model"
)

// ReplaceContainer retires the current instance of spec.Name and starts a new
// one from spec.Image. Stop and remove tolerate an absent container, so the
// replacement is idempotent: NoContainer or OldRunning -> Stopped -> Removed
// -> NewRunning. The old and new instance never run at the same time.
func ReplaceContainer(ctx context.Context, cli *client.Client, spec model.ContainerSpec, stopTimeout int, logger *slog.Logger) error {
	logger.Info("Stopping old container", "container_name", spec.Name)
	err := cli.ContainerStop(ctx, spec.Name, container.StopOptions{Timeout: &stopTimeout})
	if err != nil {
		if !tolerateNotFound(err) {
			return fmt.Errorf("failed to stop container %s: %w", spec.Name, err)
		}
		logger.Info("No running container to stop", "container_name", spec.Name)
	}

	logger.Info("Removing old container", "container_name", spec.Name)
	err = cli.ContainerRemove(ctx, spec.Name, container.RemoveOptions{})
	if err != nil {
		if !tolerateNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", spec.Name, err)
		}
		logger.Info("No old container to remove", "container_name", spec.Name)
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
	}, &container.HostConfig{
		Binds: spec.Binds,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyMode(spec.RestartPolicy),
		},
	}, nil, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// The old instance is already gone at this point, so the service is
		// down until an operator intervenes.
		return fmt.Errorf("container %s failed to start after old instance was removed, service is down: %w", spec.Name, err)
	}
	logger.Info("Successfully replaced container", "container_name", spec.Name, "container_id", resp.ID[:12], "image", spec.Image)
	return nil
}

// tolerateNotFound reports whether err is the engine's not-found response,
// the only stop/remove failure a replacement treats as "already absent".
func tolerateNotFound(err error) bool {
	return cerrdefs.IsNotFound(err)
}
