package controller

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SanitizeEnvLine strips every quote character from line and truncates it at
// the first '#'. The truncation is deliberately naive: a literal '#' inside a
// value is treated as the start of a comment, which matches what the deployed
// services already rely on.
func SanitizeEnvLine(line string) string {
	line = strings.ReplaceAll(line, `"`, "")
	line = strings.ReplaceAll(line, "'", "")
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimRight(line, " \t")
}

// SanitizeEnvFile reads the raw env file and returns its sanitized lines.
func SanitizeEnvFile(rawPath string) ([]string, error) {
	f, err := os.Open(rawPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file %s: %w", rawPath, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, SanitizeEnvLine(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", rawPath, err)
	}
	return lines, nil
}

// WithTransientEnvFile writes lines to a temporary file and hands fn its path
// together with the file's non-empty entries, read back from disk so the file
// is the single source of what the container receives. The file holds
// sanitized secrets, so it is created with 0600 permissions and removed on
// every exit path from fn, including a panic.
func WithTransientEnvFile(lines []string, fn func(envPath string, env []string) error) error {
	tmp, err := os.CreateTemp("", "redeploy-env-*")
	if err != nil {
		return fmt.Errorf("failed to create transient env file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(strings.Join(lines, "\n") + "\n")
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write transient env file: %w", err)
	}

	env, err := readEnvEntries(tmp.Name())
	if err != nil {
		return err
	}
	return fn(tmp.Name(), env)
}

// readEnvEntries returns the file's lines minus the blank ones, the same
// filtering the docker CLI applies to --env-file input.
func readEnvEntries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transient env file: %w", err)
	}
	defer f.Close()

	var env []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		env = append(env, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transient env file: %w", err)
	}
	return env, nil
}
