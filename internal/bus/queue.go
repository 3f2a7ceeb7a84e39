// Package bus holds the bounded in-memory queues that connect the bulk
// reader to its shard writers.
package bus

import (
	"context"
	"sync/atomic"
	"time"

	"equity/pkg/exception"

	"github.com/yanun0323/errors"
)

var ErrQueueClosed = errors.New("line queue closed")

// DefaultCapacity is the per-shard queue size.
const DefaultCapacity = 1 << 14

// Queue is a bounded FIFO of encoded lines. Publish blocks while the queue
// is full, which is the only backpressure between reader and writer.
type Queue struct {
	ch     chan []byte
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan []byte, capacity)}
}

// Publish enqueues a line, blocking until there is room, the context is
// done, or abort is closed.
func (q *Queue) Publish(ctx context.Context, line []byte, abort <-chan struct{}) error {
	if q == nil {
		return exception.ErrNilInstance
	}
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- line:
		return nil
	case <-abort:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll waits up to timeout for the next line.
func (q *Queue) Poll(timeout time.Duration) ([]byte, bool) {
	select {
	case line := <-q.ch:
		return line, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line := <-q.ch:
		return line, true
	case <-timer.C:
		return nil, false
	}
}

// Len is the number of queued lines.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new lines. Lines already queued can
// still be polled.
func (q *Queue) Close() {
	atomic.CompareAndSwapUint32(&q.closed, 0, 1)
}
