package vkq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
)

func tracked(b hal.Backend) int {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	return backends[b]
}

func TestBackendsUntrackedOnDestroy(t *testing.T) {
	b := soft.New()
	d1, _, err := ResolveDevice(b, SelectionPolicy{})
	require.NoError(t, err)
	d2, _, err := ResolveDevice(b, SelectionPolicy{})
	require.NoError(t, err)
	assert.Equal(t, 2, tracked(b))

	require.NoError(t, d1.Destroy())
	require.NoError(t, d1.Destroy())
	assert.Equal(t, 1, tracked(b), "destroying twice untracks once")
	require.NoError(t, d2.Destroy())
	backendsMu.Lock()
	_, ok := backends[b]
	backendsMu.Unlock()
	assert.False(t, ok)

	// A failed resolve leaves nothing behind.
	_, _, err = ResolveDevice(b, SelectionPolicy{Accept: func(*QueueFamily) bool { return false }})
	require.Error(t, err)
	assert.Zero(t, tracked(b))
}
