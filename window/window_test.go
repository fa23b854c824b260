package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadlessClosesAfterFrames(t *testing.T) {
	h := &Headless{Frames: 3}
	assert.False(t, h.CloseRequested())
	assert.False(t, h.CloseRequested())
	assert.True(t, h.CloseRequested())
	assert.Equal(t, 3, h.Polls())
}

func TestHeadlessZeroFramesNeverCloses(t *testing.T) {
	var h Headless
	for i := 0; i < 100; i++ {
		assert.False(t, h.CloseRequested())
	}
}
