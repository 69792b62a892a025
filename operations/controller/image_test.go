package controller

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainBuildOutputSuccess(t *testing.T) {
	stream := `{"stream":"Step 1/3 : FROM python:3.12-slim"}
{"stream":" ---> abc123"}
{"aux":{"ID":"sha256:deadbeef"}}
`
	require.NoError(t, drainBuildOutput(strings.NewReader(stream)))
}

func TestDrainBuildOutputEmpty(t *testing.T) {
	require.NoError(t, drainBuildOutput(strings.NewReader("")))
}

func TestDrainBuildOutputDaemonError(t *testing.T) {
	stream := `{"stream":"Step 1/3 : FROM python:3.12-slim"}
{"error":"The command '/bin/sh -c pip install' returned a non-zero code: 1"}
`
	err := drainBuildOutput(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned a non-zero code")
}

func TestDrainBuildOutputGarbage(t *testing.T) {
	err := drainBuildOutput(strings.NewReader("not json at all"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode build output")
}
