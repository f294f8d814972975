package spool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprism/marketprism/internal/schema"
)

type fakeInserter struct {
	calls   []schema.DataType
	failAt  int // index (0-based across all calls) to fail at, -1 for never
	inserts int
}

func (f *fakeInserter) InsertBatchDirect(dataType schema.DataType, payloads [][]byte) error {
	f.calls = append(f.calls, dataType)
	if f.inserts == f.failAt {
		f.inserts++
		return errors.New("insert failed")
	}
	f.inserts++
	return nil
}

func TestSpool_WriteThenDrainReplaysAllRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(schema.DataTypeTrade, [][]byte{[]byte(`{"a":1}`)}))
	require.NoError(t, s.Write(schema.DataTypeTrade, [][]byte{[]byte(`{"a":2}`)}))

	ins := &fakeInserter{failAt: -1}
	n, err := s.Drain(schema.DataTypeTrade, ins)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, ins.calls, 2)

	_, statErr := os.Stat(filepath.Join(dir, "trade.spool"))
	assert.True(t, os.IsNotExist(statErr), "fully drained spool file should be removed")
}

func TestSpool_DrainOnMissingFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	ins := &fakeInserter{failAt: -1}
	n, err := s.Drain(schema.DataTypeTrade, ins)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSpool_DrainStopsAtFirstFailureAndPreservesTail(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(schema.DataTypeTrade, [][]byte{[]byte(`{"a":1}`)}))
	require.NoError(t, s.Write(schema.DataTypeTrade, [][]byte{[]byte(`{"a":2}`)}))
	require.NoError(t, s.Write(schema.DataTypeTrade, [][]byte{[]byte(`{"a":3}`)}))

	ins := &fakeInserter{failAt: 1} // fails on the second record
	n, err := s.Drain(schema.DataTypeTrade, ins)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second drain with a healthy inserter picks up where it left off
	ins2 := &fakeInserter{failAt: -1}
	n2, err := s.Drain(schema.DataTypeTrade, ins2)
	require.NoError(t, err)
	assert.Equal(t, 2, n2)
}

func TestSpool_WriteIsolatesByDataType(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(schema.DataTypeTrade, [][]byte{[]byte(`{"a":1}`)}))
	require.NoError(t, s.Write(schema.DataTypeOrderbook, [][]byte{[]byte(`{"b":1}`)}))

	ins := &fakeInserter{failAt: -1}
	n, err := s.Drain(schema.DataTypeTrade, ins)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []schema.DataType{schema.DataTypeTrade}, ins.calls)
}
