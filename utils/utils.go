package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/chronos-ops/redeploy/model"
)

// LoadConfig reads config.yaml from the working directory. Deployment values
// are fixed per host; nothing about a run is configured via flags.
func LoadConfig() (model.Config, error) {

	config := new(model.Config)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("branch", "main")
	viper.SetDefault("stopTimeout", 10)

	if err := viper.ReadInConfig(); err != nil {
		return *config, fmt.Errorf("fatal error config file: %w", err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		return *config, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// Persistent storage lives next to the build context unless overridden.
	if config.DataDir == "" {
		config.DataDir = filepath.Join(config.RepoPath, "data")
	}

	if err := validate(*config); err != nil {
		return *config, err
	}
	return *config, nil
}

func validate(config model.Config) error {
	var missing []string
	if config.RepoPath == "" {
		missing = append(missing, "repoPath")
	}
	if config.RemoteURL == "" {
		missing = append(missing, "remoteURL")
	}
	if config.ContainerName == "" {
		missing = append(missing, "containerName")
	}
	if config.ImageTag == "" {
		missing = append(missing, "imageTag")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config values: %s", strings.Join(missing, ", "))
	}
	return nil
}
