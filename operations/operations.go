package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/moby/moby/client"

	"github.com/chronos-ops/redeploy/model"
	"github.com/chronos-ops/redeploy/operations/controller"
)

// dataMountPath is where the service expects its persistent data directory.
const dataMountPath = "/app/data"

type pipelineStep struct {
	name model.Step
	run  func() error
}

// Run executes one deployment pass: sync the working copy to the remote
// branch tip, build a fresh image from it, replace the running container, and
// finally prune unused images. The first failing step aborts the run; prune
// failures never do.
func Run(ctx context.Context, cli *client.Client, config model.Config, logger *slog.Logger) error {
	steps := []pipelineStep{
		{model.StepSync, func() error {
			update, err := SyncRepo(config, logger)
			if err != nil {
				return err
			}
			if update.WasCloned {
				logger.Info("Fresh clone created", "hash", update.NewHash.String())
			} else if update.OldHash != update.NewHash {
				logger.Info("Working copy advanced", "old_hash", update.OldHash.String(), "new_hash", update.NewHash.String())
			}
			return nil
		}},
		{model.StepBuild, func() error {
			return controller.BuildImage(ctx, cli, config.RepoPath, config.ImageTag, logger)
		}},
		{model.StepReplace, func() error {
			return replaceService(ctx, cli, config, logger)
		}},
	}
	if err := runSteps(steps, logger); err != nil {
		return err
	}
	controller.PruneImages(ctx, cli, logger)
	return nil
}

// runSteps runs the pipeline in order, stopping at the first failure and
// labeling it with the step that produced it. Steps that already carry their
// own label (the sanitize phase inside replace) keep it.
func runSteps(steps []pipelineStep, logger *slog.Logger) error {
	for _, s := range steps {
		logger.Info("Starting step", "step", s.name)
		if err := s.run(); err != nil {
			var stepErr *model.StepError
			if !errors.As(err, &stepErr) {
				err = &model.StepError{Step: s.name, Err: err}
			}
			return err
		}
		logger.Info("Step completed", "step", s.name)
	}
	return nil
}

// SyncRepo converges config.RepoPath onto the tip of the remote branch:
// clone when the path does not exist yet, otherwise fetch and hard-reset,
// discarding local commits and uncommitted changes.
func SyncRepo(config model.Config, logger *slog.Logger) (*model.RepoUpdate, error) {
	auth, err := sshAuth(config, logger)
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpen(config.RepoPath)
	if err == git.ErrRepositoryNotExists {
		if _, statErr := os.Stat(config.RepoPath); statErr == nil {
			return nil, fmt.Errorf("path %s exists but is not a git repository", config.RepoPath)
		}
		logger.Info("Repository not found, cloning...", "repo_path", config.RepoPath)
		repo, err = git.PlainClone(config.RepoPath, false, &git.CloneOptions{
			URL:           config.RemoteURL,
			Auth:          auth,
			ReferenceName: plumbing.NewBranchReferenceName(config.Branch),
			Progress:      os.Stdout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clone repository: %w", err)
		}
		headRef, err := repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to get HEAD after clone: %w", err)
		}
		logger.Info("Clone successful.")
		return &model.RepoUpdate{
			WasCloned: true,
			NewHash:   headRef.Hash(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return nil, fmt.Errorf("failed to get origin remote: %w", err)
	}
	if !remoteMatches(remote.Config().URLs, config.RemoteURL) {
		return nil, fmt.Errorf("path %s is a clone of %s, not %s", config.RepoPath, strings.Join(remote.Config().URLs, ", "), config.RemoteURL)
	}

	logger.Info("Repository found, fetching updates...")

	headRef, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	oldHash := headRef.Hash()

	err = repo.Fetch(&git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	remoteRefName := plumbing.NewRemoteReferenceName("origin", config.Branch)
	remoteRef, err := repo.Reference(remoteRefName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get remote reference: %w", err)
	}
	newHash := remoteRef.Hash()

	w, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	branchRef := plumbing.NewBranchReferenceName(config.Branch)
	err = w.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Force:  true,
	})
	if err == git.ErrBranchNotFound {
		err = w.Checkout(&git.CheckoutOptions{
			Hash:   newHash,
			Branch: branchRef,
			Create: true,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to checkout branch %s: %w", config.Branch, err)
	}
	err = w.Reset(&git.ResetOptions{
		Commit: newHash,
		Mode:   git.HardReset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset the worktree: %w", err)
	}

	if oldHash == newHash {
		logger.Info("Repository is already up-to-date.")
	}
	return &model.RepoUpdate{
		OldHash: oldHash,
		NewHash: newHash,
	}, nil
}

// replaceService retires the running instance and starts one from the fresh
// image. The sanitized env file only exists for the duration of this call.
func replaceService(ctx context.Context, cli *client.Client, config model.Config, logger *slog.Logger) error {
	spec := newContainerSpec(config)

	if config.EnvFile == "" {
		return controller.ReplaceContainer(ctx, cli, spec, config.StopTimeout, logger)
	}

	lines, err := controller.SanitizeEnvFile(config.EnvFile)
	if err != nil {
		return &model.StepError{Step: model.StepSanitize, Err: err}
	}
	return controller.WithTransientEnvFile(lines, func(envPath string, env []string) error {
		logger.Info("Sanitized env file ready", "path", envPath, "vars", len(env))
		spec.Env = env
		return controller.ReplaceContainer(ctx, cli, spec, config.StopTimeout, logger)
	})
}

func newContainerSpec(config model.Config) model.ContainerSpec {
	return model.ContainerSpec{
		Name:          config.ContainerName,
		Image:         config.ImageTag,
		Binds:         []string{config.DataDir + ":" + dataMountPath},
		RestartPolicy: "unless-stopped",
		Labels: map[string]string{
			"io.redeploy.managed": "true",
			"io.redeploy.service": config.ContainerName,
		},
	}
}

func sshAuth(config model.Config, logger *slog.Logger) (ssh.AuthMethod, error) {
	if !isSSHRemote(config.RemoteURL) {
		return nil, nil
	}

	if os.Getenv("SSH_AUTH_SOCK") != "" {
		logger.Info("SSH agent detected, attempting authentication.")
		auth, err := ssh.NewSSHAgentAuth("git")
		if err == nil {
			return auth, nil
		}
		logger.Warn("SSH agent auth failed, will attempt key file.", "error", err)
	}
	if config.SSHKeyPath == "" {
		return nil, fmt.Errorf("no SSH agent found and sshKeyPath is not configured")
	}
	logger.Info("Using SSH key file for authentication.", "path", config.SSHKeyPath)
	auth, err := ssh.NewPublicKeysFromFile("git", config.SSHKeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not create SSH authentication: %w", err)
	}
	return auth, nil
}

func isSSHRemote(url string) bool {
	return strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")
}

func remoteMatches(urls []string, want string) bool {
	for _, url := range urls {
		if url == want {
			return true
		}
	}
	return false
}
