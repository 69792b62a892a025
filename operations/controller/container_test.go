package controller

import (
	"errors"
	"fmt"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestTolerateNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"not-found sentinel is tolerated", cerrdefs.ErrNotFound, true},
		{"wrapped not-found is tolerated", fmt.Errorf("failed to stop container chronos: %w", cerrdefs.ErrNotFound), true},
		{"doubly wrapped not-found is tolerated", fmt.Errorf("remove: %w", fmt.Errorf("engine: %w", cerrdefs.ErrNotFound)), true},
		{"plain engine error is fatal", errors.New("cannot connect to the Docker daemon"), false},
		{"other errdefs sentinel is fatal", cerrdefs.ErrUnavailable, false},
		{"nil is not a tolerated failure", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tolerateNotFound(tc.err))
		})
	}
}
