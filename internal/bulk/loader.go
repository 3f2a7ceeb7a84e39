// Package bulk loads large pipe-delimited files into the sharded store.
//
// A single reader streams the file, validates and routes each line onto
// its shard's bounded queue, and one writer per shard drains that queue
// into batched bulk-load calls.
package bulk

import (
	"context"
	"fmt"
	"time"

	"equity/internal/bus"
	"equity/internal/shard"
	"equity/pkg/exception"
)

// Loader is a bulk-load channel into one table. Load receives complete
// newline-terminated canonical lines and returns the rows written.
type Loader interface {
	Load(ctx context.Context, batch []byte) (int64, error)
	Close() error
}

// OpenFunc opens the Loader owned by the writer of s.
type OpenFunc func(ctx context.Context, s shard.Shard) (Loader, error)

const (
	DefaultBatchSize     = 50_000
	DefaultPollTimeout   = 500 * time.Millisecond
	DefaultProgressEvery = 5_000_000
)

// Config tunes the pipeline. Zero values fall back to the defaults.
type Config struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	BatchSize     int           `yaml:"batch_size"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	ProgressEvery int64         `yaml:"progress_every"`
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = bus.DefaultCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	return c
}

// ShardError is the failure of one shard writer. Other shards keep going.
type ShardError struct {
	Shard shard.Shard
	Err   error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %s: %v", e.Shard, e.Err)
}

func (e *ShardError) Unwrap() []error {
	return []error{exception.ErrShardWriterAborted, e.Err}
}

// ShardErrors collects every aborted writer of one run.
type ShardErrors []*ShardError

func (es ShardErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	return fmt.Sprintf("%d shard writers aborted, first: %v", len(es), es[0])
}

func (es ShardErrors) Unwrap() []error {
	out := make([]error, 0, len(es))
	for _, e := range es {
		out = append(out, e)
	}
	return out
}
