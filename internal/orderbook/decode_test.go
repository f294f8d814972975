package orderbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprism/marketprism/internal/decimalx"
)

func TestDecodeBinanceDiff_ParsesSequenceAndLevels(t *testing.T) {
	payload := []byte(`{"e":"depthUpdate","E":123456789,"s":"BNBBTC","U":157,"u":160,"b":[["0.0024","10"]],"a":[["0.0026","100"]]}`)
	u, err := DecodeBinanceDiff(payload, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(157), u.FirstUpdateID)
	assert.Equal(t, int64(160), u.FinalUpdateID)
	require.Len(t, u.Bids, 1)
	assert.True(t, u.Bids[0].Price.Cmp(decimalx.MustParse("0.0024")) == 0)
	assert.True(t, u.Bids[0].Quantity.Cmp(decimalx.MustParse("10")) == 0)
	require.Len(t, u.Asks, 1)
}

func TestDecodeBinanceDiff_RejectsMalformedPrice(t *testing.T) {
	payload := []byte(`{"U":1,"u":2,"b":[["not-a-number","10"]],"a":[]}`)
	_, err := DecodeBinanceDiff(payload, time.Now())
	assert.Error(t, err)
}

func TestDecodeOKXDiff_ParsesChecksumAndSeq(t *testing.T) {
	payload := []byte(`{"action":"update","asks":[["0.1","1","0","1"]],"bids":[["0.09","2","0","2"]],"seqId":123456,"prevSeqId":123455,"checksum":-855196043}`)
	u, isSnapshot, err := DecodeOKXDiff(payload, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(123456), u.SeqID)
	assert.Equal(t, int64(123455), u.PrevSeqID)
	assert.True(t, u.HasChecksum)
	assert.Equal(t, int32(-855196043), u.Checksum)
	require.Len(t, u.Asks, 1)
	require.Len(t, u.Bids, 1)
	assert.False(t, isSnapshot)
}

func TestDecodeOKXDiff_NoChecksumFieldLeavesHasChecksumFalse(t *testing.T) {
	payload := []byte(`{"action":"update","asks":[],"bids":[],"seqId":1,"prevSeqId":-1}`)
	u, _, err := DecodeOKXDiff(payload, time.Now())
	require.NoError(t, err)
	assert.False(t, u.HasChecksum)
}

func TestDecodeOKXDiff_SnapshotActionReportsIsSnapshot(t *testing.T) {
	payload := []byte(`{"action":"snapshot","asks":[["0.1","1","0","1"]],"bids":[["0.09","2","0","2"]],"seqId":1,"prevSeqId":-1}`)
	_, isSnapshot, err := DecodeOKXDiff(payload, time.Now())
	require.NoError(t, err)
	assert.True(t, isSnapshot)
}

func TestDecodeOKXDiff_MissingActionTreatedAsSnapshotForBooks5(t *testing.T) {
	payload := []byte(`{"asks":[["0.1","1","0","1"]],"bids":[["0.09","2","0","2"]],"seqId":1,"prevSeqId":-1}`)
	_, isSnapshot, err := DecodeOKXDiff(payload, time.Now())
	require.NoError(t, err)
	assert.True(t, isSnapshot)
}
