// Package spool is the on-disk overflow path for batches ClickHouse
// couldn't absorb after its insert retries were exhausted: one
// length-prefixed append-only file per data type, drained back into
// ClickHouse on a fixed schedule once it's healthy again.
package spool

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/health"
	"github.com/marketprism/marketprism/internal/schema"
)

// DrainInterval is how often RunDrainLoop retries spooled batches,
// per spec.md §9's "background drainer every 30s".
const DrainInterval = 30 * time.Second

// RunDrainLoop drains every known data type's spool file on a fixed
// interval until ctx is cancelled. It's meant to run as its own
// goroutine alongside the hot consumer.
func (s *Spool) RunDrainLoop(ctx context.Context, ins Inserter) {
	ticker := time.NewTicker(DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, dt := range schema.AllDataTypes {
				n, err := s.Drain(dt, ins)
				if err != nil {
					log.Warn().Err(err).Str("data_type", string(dt)).Msg("spool: drain failed")
					continue
				}
				if n > 0 {
					log.Info().Str("data_type", string(dt)).Int("count", n).Msg("spool: drained spooled batches")
				}
			}
		}
	}
}

// record is one spooled batch: the data type it belongs to and the
// raw JSON payloads that made it up.
type record struct {
	DataType schema.DataType `json:"data_type"`
	Payloads [][]byte        `json:"payloads"`
}

// Spool appends failed batches to disk and replays them later. Each
// data type gets its own file so a drain of one type never blocks on
// another's.
type Spool struct {
	dir     string
	mu      sync.Mutex
	metrics *health.Metrics
}

func New(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: creating directory %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

// SetMetrics attaches the SpoolDepth gauge Write and Drain report into.
// Optional; a nil metrics leaves the gauge untouched.
func (s *Spool) SetMetrics(m *health.Metrics) {
	s.metrics = m
}

func (s *Spool) pathFor(dataType schema.DataType) string {
	return filepath.Join(s.dir, string(dataType)+".spool")
}

// Write appends one length-prefixed record to the data type's spool
// file.
func (s *Spool) Write(dataType schema.DataType, payloads [][]byte) error {
	buf, err := json.Marshal(record{DataType: dataType, Payloads: payloads})
	if err != nil {
		return fmt.Errorf("spool: marshaling record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.pathFor(dataType), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("spool: opening %s: %w", dataType, err)
	}
	defer f.Close()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := f.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("spool: writing length prefix: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("spool: writing record: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SpoolDepth.WithLabelValues(string(dataType)).Inc()
	}
	return nil
}

// Inserter is the subset of clickhouse.Client the drainer needs,
// narrowed so tests can fake it without a live ClickHouse connection.
type Inserter interface {
	InsertBatchDirect(dataType schema.DataType, payloads [][]byte) error
}

// Drain replays every complete record in dataType's spool file through
// ins, truncating the file to just the unreplayed tail on success. A
// record that fails to insert stops the drain at that point; records
// before it have already been truncated off, and the failing record
// plus everything after it is rewritten back so the next drain retries
// them in order.
func (s *Spool) Drain(dataType schema.DataType, ins Inserter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(dataType)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("spool: opening %s: %w", dataType, err)
	}

	r := bufio.NewReader(f)
	var drained int
	var failedFrom []byte
	for {
		rec, raw, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("data_type", string(dataType)).Msg("spool: corrupt record, stopping drain")
			break
		}
		if insErr := ins.InsertBatchDirect(rec.DataType, rec.Payloads); insErr != nil {
			failedFrom = append(raw, drainRemainder(r)...)
			break
		}
		drained++
	}
	f.Close()

	if drained > 0 && s.metrics != nil {
		s.metrics.SpoolDepth.WithLabelValues(string(dataType)).Sub(float64(drained))
	}

	if len(failedFrom) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return drained, fmt.Errorf("spool: truncating %s after full drain: %w", dataType, err)
		}
		return drained, nil
	}

	if err := os.WriteFile(path, failedFrom, 0o644); err != nil {
		return drained, fmt.Errorf("spool: rewriting undrained tail for %s: %w", dataType, err)
	}
	return drained, nil
}

func drainRemainder(r *bufio.Reader) []byte {
	rest, _ := io.ReadAll(r)
	return rest
}

func readRecord(r *bufio.Reader) (record, []byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return record{}, nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return record{}, nil, fmt.Errorf("spool: truncated record: %w", err)
	}
	var rec record
	if err := json.Unmarshal(buf, &rec); err != nil {
		return record{}, nil, fmt.Errorf("spool: unmarshaling record: %w", err)
	}
	raw := append(append([]byte{}, lenPrefix[:]...), buf...)
	return rec, raw, nil
}
