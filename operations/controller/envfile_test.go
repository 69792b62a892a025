package controller

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeEnvLine(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain pair untouched", "KEY=VALUE", "KEY=VALUE"},
		{"double quotes stripped", `TOKEN="s3cret"`, "TOKEN=s3cret"},
		{"single quotes stripped", "NAME='chronos'", "NAME=chronos"},
		{"trailing comment stripped", "PORT=8080 # http", "PORT=8080"},
		{"comment only line emptied", "# all of this goes", ""},
		{"hash inside quoted value truncates", `API_KEY="abc#123"  # secret`, "API_KEY=abc"},
		{"empty line stays empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeEnvLine(tc.in))
		})
	}
}

func TestSanitizeEnvLineIdempotent(t *testing.T) {
	lines := []string{
		`API_KEY="abc#123"  # secret`,
		"PORT=8080 # http",
		"NAME='chronos'",
		"KEY=VALUE",
	}
	for _, line := range lines {
		once := SanitizeEnvLine(line)
		assert.Equal(t, once, SanitizeEnvLine(once), "sanitizing twice must equal sanitizing once for %q", line)
	}
}

func TestSanitizeEnvFile(t *testing.T) {
	raw := "API_KEY=\"abc#123\"  # secret\nPORT=8080\n# comment line\nNAME='chronos'\n"
	path := filepath.Join(t.TempDir(), "env")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	lines, err := SanitizeEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"API_KEY=abc", "PORT=8080", "", "NAME=chronos"}, lines)
}

func TestSanitizeEnvFileMissing(t *testing.T) {
	_, err := SanitizeEnvFile(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open env file")
}

func TestWithTransientEnvFile(t *testing.T) {
	var seenPath string
	var seenEnv []string
	err := WithTransientEnvFile([]string{"A=1", "", "B=2"}, func(envPath string, env []string) error {
		seenPath = envPath
		seenEnv = env

		content, err := os.ReadFile(envPath)
		require.NoError(t, err)
		assert.Equal(t, "A=1\n\nB=2\n", string(content))

		info, err := os.Stat(envPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=2"}, seenEnv, "blank lines are not passed to the container")
	assert.NoFileExists(t, seenPath, "transient file must be removed after success")
}

func TestWithTransientEnvFileRemovedOnError(t *testing.T) {
	var seenPath string
	wantErr := errors.New("start failed")
	err := WithTransientEnvFile([]string{"A=1"}, func(envPath string, env []string) error {
		seenPath = envPath
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.NoFileExists(t, seenPath, "transient file must be removed on the error path")
}

func TestWithTransientEnvFileRemovedOnPanic(t *testing.T) {
	var seenPath string
	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		WithTransientEnvFile([]string{"A=1"}, func(envPath string, env []string) error {
			seenPath = envPath
			panic("boom")
		})
	}()
	assert.NoFileExists(t, seenPath, "transient file must be removed when fn panics")
}
