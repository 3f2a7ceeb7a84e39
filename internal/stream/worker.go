package stream

import (
	"context"
	"time"

	"equity/internal/obs"
	"equity/pkg/backoff"
	"equity/pkg/exception"

	"github.com/yanun0323/logs"
)

// DefaultReceiveWait bounds one receive call.
const DefaultReceiveWait = time.Second

// Worker pulls one message at a time and settles it before the next.
type Worker struct {
	transport Transport
	handler   *Handler
	stats     *obs.Stats
	metrics   *obs.Metrics
	wait      time.Duration
	retry     backoff.Backoff
}

// NewWorker builds a worker. wait <= 0 uses DefaultReceiveWait.
func NewWorker(transport Transport, handler *Handler, stats *obs.Stats, metrics *obs.Metrics, wait time.Duration) (*Worker, error) {
	if transport == nil || handler == nil || stats == nil {
		return nil, exception.ErrNilInstance
	}
	if wait <= 0 {
		wait = DefaultReceiveWait
	}
	return &Worker{
		transport: transport,
		handler:   handler,
		stats:     stats,
		metrics:   metrics,
		wait:      wait,
		retry:     backoff.Default(),
	}, nil
}

// Run consumes until ctx is done or the transport is closed. A receive
// timeout is normal and just polls again; transport errors are retried
// with backoff and never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			logs.Info("worker exit")
			return nil
		}

		msg, ok, err := w.transport.Receive(ctx, w.wait)
		if err != nil {
			if exception.Is(err, exception.ErrTransportClosed) || ctx.Err() != nil {
				logs.Info("worker exit")
				return nil
			}
			attempt++
			wait := w.retry.Next(attempt)
			logs.Errorf("receive failed, retry in %s, err: %+v", wait, err)
			if backoff.Sleep(ctx, wait) != nil {
				logs.Info("worker exit")
				return nil
			}
			continue
		}
		attempt = 0

		if !ok {
			w.metrics.IncReceiveIdle()
			continue
		}

		w.stats.Touch()
		logs.Infof("received msgId=%s, payload=%s", msg.ID, msg.Payload)
		w.settle(ctx, msg, w.handler.Handle(ctx, msg.Payload))
	}
}

func (w *Worker) settle(ctx context.Context, msg Message, d Decision) {
	var err error
	switch d {
	case DecisionAck:
		err = w.transport.Ack(ctx, msg)
	default:
		err = w.transport.Nack(ctx, msg)
	}
	if err != nil {
		logs.Warnf("settle %s msgId=%s, err: %+v", d, msg.ID, err)
	}
}
