package bulk

import (
	"bufio"
	"context"
	"io"
	"time"

	"equity/internal/obs"
	"equity/internal/record"
	"equity/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// RelationResult is the outcome of one relation file load.
type RelationResult struct {
	OK      int64
	Fail    int64
	Loaded  int64
	Elapsed time.Duration
}

// RelationLoader loads manager to customer relations through one reused
// Loader, flushing every BatchSize rows.
type RelationLoader struct {
	cfg     Config
	stats   *obs.Stats
	metrics *obs.Metrics
}

// NewRelationLoader builds a loader. stats and metrics may be nil.
func NewRelationLoader(cfg Config, stats *obs.Stats, metrics *obs.Metrics) *RelationLoader {
	return &RelationLoader{cfg: cfg.withDefaults(), stats: stats, metrics: metrics}
}

// Run reads r to EOF. Any read or load error aborts the whole run.
func (l *RelationLoader) Run(ctx context.Context, r io.Reader, sink *BadSink, loader Loader) (RelationResult, error) {
	if r == nil || sink == nil || loader == nil {
		return RelationResult{}, errors.Wrap(exception.ErrNilInstance, "reader, sink or loader")
	}

	start := time.Now()
	var res RelationResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineSize)

	batch := make([]byte, 0, 1<<20)
	buffered := 0
	flush := func() error {
		if buffered == 0 {
			return nil
		}
		t := time.Now()
		n, err := loader.Load(ctx, batch)
		if err != nil {
			return errors.Wrap(err, "copy relation batch")
		}
		res.Loaded += n
		l.metrics.ObserveFlush("relation", n, time.Since(t))
		logs.Infof("relation batch copied: %d rows (this), %d rows (total), ok=%d, bad=%d", n, res.Loaded, res.OK, res.Fail)
		batch = batch[:0]
		buffered = 0
		return nil
	}

	for sc.Scan() {
		raw := sc.Bytes()
		rel, err := record.ParseRelation(string(raw))
		if err != nil {
			if err := sink.Append(raw); err != nil {
				return res, err
			}
			res.Fail++
			l.metrics.ObserveOutcome(obs.OutcomeMalformed, 0)
			continue
		}

		batch = rel.AppendCanonical(batch)
		buffered++
		res.OK++
		l.metrics.ObserveOutcome(obs.OutcomeAccepted, 0)

		if buffered >= l.cfg.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
		if res.OK%l.cfg.ProgressEvery == 0 {
			logs.Infof("relation feeder progress: ok=%d bad=%d", res.OK, res.Fail)
		}
	}
	if err := sc.Err(); err != nil {
		return res, errors.Wrapf(exception.ErrReaderAborted, "read relations: %s", err.Error())
	}
	if err := flush(); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	logs.Infof("relation load finished. ok=%d bad=%d totalCopied=%d", res.OK, res.Fail, res.Loaded)
	if l.stats != nil {
		l.stats.Set(res.OK, res.Fail)
		if err := l.stats.Persist(); err != nil {
			logs.Warnf("persist %s stats, err: %+v", l.stats.Name(), err)
		}
	}
	return res, nil
}
