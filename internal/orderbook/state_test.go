package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_StringRendersAllValues(t *testing.T) {
	assert.Equal(t, "UNSYNCED", StateUnsynced.String())
	assert.Equal(t, "SNAPSHOT_PENDING", StateSnapshotPending.String())
	assert.Equal(t, "BUFFERING", StateBuffering.String())
	assert.Equal(t, "SYNCED", StateSynced.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
