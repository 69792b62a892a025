package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/pkg/archive"
	"github.com/moby/moby/api/types/build"
	"github.com/moby/moby/api/types/filters"
	"github.com/moby/moby/client"
)

// BuildImage tars contextDir and asks the daemon to build it under tag. The
// previously running container is untouched by this step.
func BuildImage(ctx context.Context, cli *client.Client, contextDir, tag string, logger *slog.Logger) error {
	logger.Info("Building image", "tag", tag, "build_context", contextDir)

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{
		ExcludePatterns: []string{".git"},
	})
	if err != nil {
		return fmt.Errorf("failed to tar build context %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	resp, err := cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	if err := drainBuildOutput(resp.Body); err != nil {
		return fmt.Errorf("image build failed for %s: %w", tag, err)
	}
	logger.Info("Image built successfully.", "tag", tag)
	return nil
}

// drainBuildOutput consumes the daemon's JSON message stream until EOF.
// Build failures are reported inside the stream, not by ImageBuild itself.
func drainBuildOutput(r io.Reader) error {
	type buildMessage struct {
		Error string `json:"error"`
	}
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to decode build output: %w", err)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
	}
}

// PruneImages reclaims dangling images left behind by previous builds. A full
// image store is not a deployment failure, so errors are logged and swallowed.
func PruneImages(ctx context.Context, cli *client.Client, logger *slog.Logger) {
	logger.Info("Pruning unused images...")
	report, err := cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		logger.Warn("Image prune failed", "error", err)
		return
	}
	logger.Info("Prune complete", "deleted_count", len(report.ImagesDeleted), "space_reclaimed", report.SpaceReclaimed)
}
