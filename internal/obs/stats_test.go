package obs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsPersistAndRead(t *testing.T) {
	dir := t.TempDir()
	s := NewStats(dir, "equity")
	s.IncOK()
	s.IncOK()
	s.IncFail()

	require.NoError(t, s.Persist())

	data, err := os.ReadFile(filepath.Join(dir, "equity.ok"))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))

	got := ReadCounts(dir, "equity")
	assert.Equal(t, Counts{OK: 2, Fail: 1}, got)
}

func TestStatsPersistEach(t *testing.T) {
	dir := t.TempDir()
	s := NewStats(dir, "mq", WithPersistEach())
	s.IncFail()

	assert.Equal(t, Counts{OK: 0, Fail: 1}, ReadCounts(dir, "mq"))
	s.IncOK()
	assert.Equal(t, Counts{OK: 1, Fail: 1}, ReadCounts(dir, "mq"))
}

func TestReadCountsMissingOrGarbage(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, Counts{}, ReadCounts(dir, "relation"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "relation.ok"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relation.fail"), []byte(" 7 \n"), 0o644))
	assert.Equal(t, Counts{OK: 0, Fail: 7}, ReadCounts(dir, "relation"))
}

func TestStatsActivityClock(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewStats("", "mq", WithClock(func() time.Time { return now }))
	start := s.LastTouch()

	now = now.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, s.IdleFor())

	s.Touch()
	assert.NotEqual(t, start, s.LastTouch())
	assert.Equal(t, time.Duration(0), s.IdleFor())

	s.Set(5, 2)
	assert.Equal(t, int64(7), s.Total())
	require.NoError(t, s.Persist(), "empty dir is a no-op")
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(nil)
	m.ObserveOutcome(OutcomeAccepted, time.Millisecond)
	m.ObserveOutcome(OutcomeAccepted, 3*time.Millisecond)
	m.ObserveOutcome(OutcomeDuplicate, 0)
	m.ObserveFlush("01", 10, time.Second)
	m.IncReceiveIdle()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Outcomes[OutcomeAccepted])
	assert.Equal(t, uint64(1), snap.Outcomes[OutcomeDuplicate])
	assert.Equal(t, uint64(10), snap.BatchRows)
	assert.Equal(t, uint64(1), snap.Batches)
	assert.Equal(t, uint64(1), snap.ReceiveIdle)
	assert.Equal(t, time.Millisecond, snap.HandleLatency.Min)
	assert.Equal(t, 3*time.Millisecond, snap.HandleLatency.Max)
	assert.Equal(t, 2*time.Millisecond, snap.HandleLatency.Avg)

	var nilMetrics *Metrics
	nilMetrics.ObserveOutcome(OutcomeMalformed, 0)
	assert.Equal(t, Snapshot{}, nilMetrics.Snapshot())
}
