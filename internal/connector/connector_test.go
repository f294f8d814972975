package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_NeverExceedsCap(t *testing.T) {
	b := DefaultBackoff()
	for attempt := 0; attempt < 40; attempt++ {
		d := b.Delay(attempt)
		assert.True(t, d <= b.Cap, "attempt %d produced %s > cap %s", attempt, d, b.Cap)
		assert.True(t, d >= 0)
	}
}

func TestBackoff_SaturatesAtCap(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second}
	// base*2^6 = 64s, well past the 30s cap, so every sample here must
	// be drawn from [0, cap].
	for i := 0; i < 20; i++ {
		assert.True(t, b.Delay(6) <= b.Cap)
	}
}
