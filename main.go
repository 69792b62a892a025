package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/moby/moby/client"

	"github.com/chronos-ops/redeploy/model"
	"github.com/chronos-ops/redeploy/operations"
	"github.com/chronos-ops/redeploy/utils"
)

func main() {
	// Create structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	healthCheck := flag.Bool("health-check", false, "Ping the Docker daemon and exit.")
	flag.Parse()

	if *healthCheck {
		logger.Info("Performing health check...")

		cli, err := client.NewClientWithOpts(client.FromEnv)
		if err != nil {
			logger.Error("Health check FAILED: could not create Docker client", "error", err)
			os.Exit(1)
		}
		defer cli.Close()

		if _, err := cli.Ping(context.Background()); err != nil {
			logger.Error("Health check FAILED: could not ping Docker daemon", "error", err)
			os.Exit(1)
		}

		logger.Info("Health check PASSED.")
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Redeploy starting...")

	config, err := utils.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	clientOpts := []client.Opt{client.FromEnv}
	if config.DockerAPIVersion != "" {
		logger.Info("Using specific Docker API version", "version", config.DockerAPIVersion)
		clientOpts = append(clientOpts, client.WithVersion(config.DockerAPIVersion))
	} else {
		logger.Info("Docker API version not specified, using automatic negotiation.")
		clientOpts = append(clientOpts, client.WithAPIVersionNegotiation())
	}
	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		logger.Error("Failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer cli.Close()

	if err := operations.Run(ctx, cli, config, logger); err != nil {
		var stepErr *model.StepError
		if errors.As(err, &stepErr) {
			logger.Error("Deployment failed", "step", stepErr.Step, "error", stepErr.Err)
		} else {
			logger.Error("Deployment failed", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("Deployment succeeded.", "container_name", config.ContainerName, "image", config.ImageTag)
}
