package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_SeparatesBucketsByKey(t *testing.T) {
	l := New(1, 1)
	k1 := Key("binance", "10.0.0.1")
	k2 := Key("okx", "10.0.0.1")

	assert.True(t, l.Allow(k1))
	assert.False(t, l.Allow(k1), "second immediate request on the same bucket should be throttled")
	assert.True(t, l.Allow(k2), "a distinct exchange key must have its own bucket")
}

func TestKey_DistinguishesExchangeFromIP(t *testing.T) {
	assert.NotEqual(t, Key("binance", "okx"), Key("okx", "binance"))
}
