package model

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

type Config struct {
	RepoPath         string
	RemoteURL        string
	Branch           string
	ContainerName    string
	ImageTag         string
	EnvFile          string
	DataDir          string
	SSHKeyPath       string
	DockerAPIVersion string
	StopTimeout      int
}

type RepoUpdate struct {
	WasCloned bool
	OldHash   plumbing.Hash
	NewHash   plumbing.Hash
}

// ContainerSpec describes the single container instance a deployment run
// converges to. At most one container may hold Name after a run.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           []string
	Binds         []string
	RestartPolicy string
	Labels        map[string]string
}

// Step identifies a stage of the deployment pipeline.
type Step string

const (
	StepSync     Step = "sync"
	StepBuild    Step = "build"
	StepSanitize Step = "sanitize"
	StepReplace  Step = "replace"
	StepPrune    Step = "prune"
)

// StepError labels a failure with the pipeline stage that produced it, so an
// operator can tell from the exit log whether the old container is still
// running (sync/build failures) or already gone (replace failures).
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
