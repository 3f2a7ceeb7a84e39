package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"equity/internal/obs"
	"equity/internal/repository"
	"equity/internal/repository/repositorytest"
	"equity/internal/shard"
	"equity/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	QueueCapacity: 4,
	BatchSize:     7,
	PollTimeout:   5 * time.Millisecond,
	ProgressEvery: 50,
}

func memoryOpen(m *repositorytest.Memory) OpenFunc {
	tables := repository.DefaultTables()
	return func(_ context.Context, s shard.Shard) (Loader, error) {
		return m.Copy(tables.Snapshot(s)), nil
	}
}

func equityLine(customer int) string {
	return fmt.Sprintf("2025-06-01 21:00:01|%d|6222%d|usd|%d.50", customer, customer, customer)
}

// buildInput returns R valid lines, B invalid lines and the per-shard count of valid ones.
func buildInput(valid int, bad []string) (string, [shard.Count]int) {
	var (
		sb       strings.Builder
		perShard [shard.Count]int
	)
	for i := 1; i <= valid; i++ {
		sb.WriteString(equityLine(i))
		sb.WriteByte('\n')
		perShard[shard.MustOf(fmt.Sprint(i)).Index()]++
		if i-1 < len(bad) {
			sb.WriteString(bad[i-1])
			sb.WriteByte('\n')
		}
	}
	return sb.String(), perShard
}

var badLines = []string{
	"",
	"2025-06-01 21:00:01|12345678901|1|USD|1.00",
	"2025-06-01 21:00:01|1|1|US|1.00",
	"not a record",
	"2025-06-01T21:00:01|1|1|USD|1.00",
}

func TestPipelineLoadsEveryValidLine(t *testing.T) {
	ctx := context.Background()
	mem := repositorytest.NewMemory()
	dir := t.TempDir()
	stats := obs.NewStats(dir, "equity")
	metrics := obs.NewMetrics(nil)

	p, err := NewPipeline(testConfig, memoryOpen(mem), stats, metrics)
	require.NoError(t, err)

	const valid = 200
	input, perShard := buildInput(valid, badLines)
	badOut := &bytes.Buffer{}
	sink := NewBadSink(badOut)

	res, err := p.Run(ctx, strings.NewReader(input), sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.EqualValues(t, valid, res.OK)
	assert.EqualValues(t, len(badLines), res.Fail)
	assert.EqualValues(t, valid, res.TotalLoaded())

	tables := repository.DefaultTables()
	for _, s := range shard.All() {
		rows := mem.Copied(tables.Snapshot(s))
		assert.Len(t, rows, perShard[s.Index()], "shard %s", s)
		assert.EqualValues(t, perShard[s.Index()], res.Loaded[s.Index()])
		assert.Zero(t, res.Dropped[s.Index()])
		for _, row := range rows {
			customer := strings.Split(row, "|")[1]
			assert.Len(t, customer, shard.CustomerNoWidth)
			assert.Equal(t, s, shard.MustOf(customer))
		}
	}

	assert.Equal(t, strings.Join(badLines, "\n")+"\n", badOut.String())
	assert.EqualValues(t, len(badLines), sink.Count())

	counts := obs.ReadCounts(dir, "equity")
	assert.Equal(t, obs.Counts{OK: valid, Fail: int64(len(badLines))}, counts)

	snap := metrics.Snapshot()
	assert.EqualValues(t, valid, snap.Outcomes[obs.OutcomeAccepted])
	assert.EqualValues(t, valid, snap.BatchRows)
}

func TestPipelineEmptyInput(t *testing.T) {
	p, err := NewPipeline(testConfig, memoryOpen(repositorytest.NewMemory()), nil, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), strings.NewReader(""), NewBadSink(io.Discard))
	require.NoError(t, err)
	assert.Zero(t, res.OK)
	assert.Zero(t, res.Fail)
}

func TestPipelineShardFailureIsolated(t *testing.T) {
	ctx := context.Background()
	mem := repositorytest.NewMemory()
	tables := repository.DefaultTables()
	broken := shard.FromIndex(2)
	mem.FailNext(tables.Snapshot(broken), errors.New("connection reset by peer"))

	openErr := shard.FromIndex(5)
	open := func(ctx context.Context, s shard.Shard) (Loader, error) {
		if s == openErr {
			return nil, errors.New("too many connections")
		}
		return memoryOpen(mem)(ctx, s)
	}

	p, err := NewPipeline(testConfig, open, nil, nil)
	require.NoError(t, err)

	const valid = 320
	input, perShard := buildInput(valid, nil)
	res, err := p.Run(ctx, strings.NewReader(input), NewBadSink(io.Discard))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrShardWriterAborted))

	var failed ShardErrors
	require.True(t, errors.As(err, &failed))
	require.Len(t, failed, 2)
	assert.Equal(t, broken, failed[0].Shard)
	assert.Equal(t, openErr, failed[1].Shard)

	assert.EqualValues(t, valid, res.OK)
	for _, s := range shard.All() {
		i := s.Index()
		switch s {
		case broken, openErr:
			assert.Zero(t, res.Loaded[i], "shard %s", s)
			assert.EqualValues(t, perShard[i], res.Dropped[i], "shard %s", s)
		default:
			assert.EqualValues(t, perShard[i], res.Loaded[i], "shard %s", s)
			assert.Len(t, mem.Copied(tables.Snapshot(s)), perShard[i])
		}
	}
}

type failingReader struct {
	data io.Reader
}

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, errors.New("input/output error")
	}
	return n, err
}

func TestPipelineReaderErrorAborts(t *testing.T) {
	dir := t.TempDir()
	stats := obs.NewStats(dir, "equity")
	p, err := NewPipeline(testConfig, memoryOpen(repositorytest.NewMemory()), stats, nil)
	require.NoError(t, err)

	input, _ := buildInput(10, nil)
	res, err := p.Run(context.Background(), &failingReader{data: strings.NewReader(input)}, NewBadSink(io.Discard))
	require.Error(t, err)
	assert.True(t, exception.Is(err, exception.ErrReaderAborted))
	assert.EqualValues(t, 10, res.OK)
	assert.EqualValues(t, 10, res.TotalLoaded())

	assert.Equal(t, obs.Counts{}, obs.ReadCounts(dir, "equity"))
}

func TestNewPipelineRequiresOpen(t *testing.T) {
	_, err := NewPipeline(Config{}, nil, nil, nil)
	assert.True(t, exception.Is(err, exception.ErrNilInstance))
}
