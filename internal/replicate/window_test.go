package replicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextWindow_ReturnsFalseWithinSafetyLag(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lastEnd := now.Add(-5 * time.Minute) // candidate end = now + 5m, not yet past the 15m lag
	_, ok := NextWindow(lastEnd, now)
	assert.False(t, ok)
}

func TestNextWindow_ReturnsTrueOnceLagCleared(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lastEnd := now.Add(-30 * time.Minute)
	window, ok := NextWindow(lastEnd, now)
	assert.True(t, ok)
	assert.Equal(t, lastEnd, window.From)
	assert.Equal(t, lastEnd.Add(WindowSize), window.To)
}

func TestNextWindow_IsTumbling(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lastEnd := now.Add(-1 * time.Hour)
	w1, ok := NextWindow(lastEnd, now)
	assert.True(t, ok)
	w2, ok := NextWindow(w1.To, now)
	assert.True(t, ok)
	assert.Equal(t, w1.To, w2.From)
}
