package bulk

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"equity/internal/bus"
	"equity/internal/obs"
	"equity/internal/record"
	"equity/internal/shard"
	"equity/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const maxLineSize = 1 << 20

// Result is the outcome of one pipeline run.
type Result struct {
	// OK is the number of valid lines handed to a shard queue.
	OK int64
	// Fail is the number of lines quarantined to the bad sink.
	Fail int64
	// Loaded is the rows each shard's loader acknowledged.
	Loaded [shard.Count]int64
	// Dropped is the valid rows a shard could not load after its writer aborted.
	Dropped [shard.Count]int64
	Elapsed time.Duration
}

// TotalLoaded sums Loaded over every shard.
func (r Result) TotalLoaded() int64 {
	var n int64
	for _, v := range r.Loaded {
		n += v
	}
	return n
}

// Pipeline loads equity snapshot files.
type Pipeline struct {
	cfg     Config
	open    OpenFunc
	stats   *obs.Stats
	metrics *obs.Metrics
}

// NewPipeline builds a pipeline. stats and metrics may be nil.
func NewPipeline(cfg Config, open OpenFunc, stats *obs.Stats, metrics *obs.Metrics) (*Pipeline, error) {
	if open == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "open func")
	}
	return &Pipeline{cfg: cfg.withDefaults(), open: open, stats: stats, metrics: metrics}, nil
}

// Run streams r to the shard writers and waits until every writer has
// drained its queue. Rejected lines go to sink. A read error aborts the
// run; a writer failure only aborts its shard and is returned as
// ShardErrors alongside the result.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, sink *BadSink) (Result, error) {
	if r == nil || sink == nil {
		return Result{}, errors.Wrap(exception.ErrNilInstance, "reader or sink")
	}

	start := time.Now()
	exhausted := &atomic.Bool{}
	writers := make([]*writer, shard.Count)
	wg := sync.WaitGroup{}
	for i := range writers {
		w := &writer{
			shard:     shard.FromIndex(i),
			queue:     bus.NewQueue(p.cfg.QueueCapacity),
			exhausted: exhausted,
			abort:     make(chan struct{}),
			cfg:       p.cfg,
			metrics:   p.metrics,
		}
		writers[i] = w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx, p.open)
		}()
	}

	res, readErr := p.read(ctx, r, sink, writers)
	// writers exit only once this is set and their queue is empty
	exhausted.Store(true)
	wg.Wait()

	var failed ShardErrors
	for i, w := range writers {
		res.Loaded[i] = w.loaded
		res.Dropped[i] += w.dropped
		if w.err != nil {
			failed = append(failed, w.err)
		}
		w.queue.Close()
	}
	res.Elapsed = time.Since(start)

	if readErr != nil {
		logs.Errorf("equity load aborted after %d ok, %d fail, err: %+v", res.OK, res.Fail, readErr)
		return res, errors.Wrapf(exception.ErrReaderAborted, "read input: %s", readErr.Error())
	}

	logs.Infof("equity load finished. success=%d fail=%d loaded=%d elapsed=%s", res.OK, res.Fail, res.TotalLoaded(), res.Elapsed)
	if p.stats != nil {
		p.stats.Set(res.OK, res.Fail)
		if err := p.stats.Persist(); err != nil {
			logs.Warnf("persist %s stats, err: %+v", p.stats.Name(), err)
		}
	}

	if len(failed) != 0 {
		return res, failed
	}
	return res, nil
}

func (p *Pipeline) read(ctx context.Context, r io.Reader, sink *BadSink, writers []*writer) (Result, error) {
	var res Result
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineSize)

	for sc.Scan() {
		raw := sc.Bytes()
		snap, err := record.ParseEquitySnapshot(string(raw))
		if err != nil {
			if err := sink.Append(raw); err != nil {
				return res, err
			}
			res.Fail++
			p.metrics.ObserveOutcome(obs.OutcomeMalformed, 0)
			continue
		}

		s := snap.Shard()
		w := writers[s.Index()]
		res.OK++
		p.metrics.ObserveOutcome(obs.OutcomeAccepted, 0)
		if w.aborted() {
			res.Dropped[s.Index()]++
		} else if err := w.queue.Publish(ctx, snap.AppendCanonical(nil), w.abort); err != nil {
			if !w.aborted() {
				return res, err
			}
			res.Dropped[s.Index()]++
		}

		if res.OK%p.cfg.ProgressEvery == 0 {
			logs.Infof("queued %d rows, bad %d", res.OK, res.Fail)
		}
	}
	return res, sc.Err()
}

// writer owns one shard queue and its loader.
type writer struct {
	shard     shard.Shard
	queue     *bus.Queue
	exhausted *atomic.Bool
	abort     chan struct{}
	cfg       Config
	metrics   *obs.Metrics

	// written by the writer goroutine, read after it exits
	loaded  int64
	dropped int64
	err     *ShardError

	failed atomic.Bool
}

func (w *writer) aborted() bool {
	return w.failed.Load()
}

func (w *writer) fail(err error) {
	w.err = &ShardError{Shard: w.shard, Err: err}
	w.failed.Store(true)
	close(w.abort)
	logs.Errorf("shard %s writer aborted, keep draining, err: %+v", w.shard, err)
}

func (w *writer) done() bool {
	return w.exhausted.Load() && w.queue.Len() == 0
}

func (w *writer) run(ctx context.Context, open OpenFunc) {
	loader, err := open(ctx, w.shard)
	if err != nil {
		w.fail(err)
	} else {
		defer func() {
			if err := loader.Close(); err != nil {
				logs.Warnf("close shard %s loader, err: %+v", w.shard, err)
			}
		}()
	}

	batch := make([]byte, 0, 64<<10)
	for {
		count := 0
		batch = batch[:0]
		for count < w.cfg.BatchSize {
			line, ok := w.queue.Poll(w.cfg.PollTimeout)
			if ok {
				if w.aborted() {
					w.dropped++
					continue
				}
				batch = append(batch, line...)
				count++
				continue
			}
			if w.done() {
				break
			}
		}

		if count > 0 {
			w.flush(ctx, loader, batch, count)
		}

		if w.done() {
			if w.err == nil {
				logs.Infof("shard %s copied rows = %d", w.shard, w.loaded)
			}
			return
		}
	}
}

func (w *writer) flush(ctx context.Context, loader Loader, batch []byte, count int) {
	start := time.Now()
	n, err := loader.Load(ctx, batch)
	if err != nil {
		w.dropped += int64(count)
		w.fail(err)
		return
	}
	w.loaded += n
	w.metrics.ObserveFlush(w.shard.Suffix(), n, time.Since(start))
	logs.Infof("shard %s imported batch %d rows, total=%d", w.shard, n, w.loaded)
}
