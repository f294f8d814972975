package orderbook

// State is a position in the order-book synchronization state machine.
// A Book starts UNSYNCED, requests a snapshot, buffers diffs that
// arrive before the snapshot lands, and only starts emitting canonical
// Orderbook records once SYNCED. Any sequence gap drops it back to
// UNSYNCED to force a resync.
type State int

const (
	StateUnsynced State = iota
	StateSnapshotPending
	StateBuffering
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "UNSYNCED"
	case StateSnapshotPending:
		return "SNAPSHOT_PENDING"
	case StateBuffering:
		return "BUFFERING"
	case StateSynced:
		return "SYNCED"
	default:
		return "UNKNOWN"
	}
}
