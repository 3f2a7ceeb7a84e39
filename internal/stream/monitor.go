package stream

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"equity/internal/obs"
	"equity/pkg/backoff"
	"equity/pkg/exception"

	"github.com/yanun0323/logs"
)

// Reporter delivers the final success count once the stream has drained.
type Reporter interface {
	ReportStream(ctx context.Context, success int64) error
}

// IdleConfig times the quiescence check.
type IdleConfig struct {
	Heartbeat time.Duration `yaml:"heartbeat"`
	Idle      time.Duration `yaml:"idle"`
	Grace     time.Duration `yaml:"grace"`
}

// DefaultIdleConfig returns 5s heartbeat, 30s idle and 10s grace.
func DefaultIdleConfig() IdleConfig {
	return IdleConfig{Heartbeat: 5 * time.Second, Idle: 30 * time.Second, Grace: 10 * time.Second}
}

func (c IdleConfig) withDefaults() IdleConfig {
	def := DefaultIdleConfig()
	if c.Heartbeat <= 0 {
		c.Heartbeat = def.Heartbeat
	}
	if c.Idle <= 0 {
		c.Idle = def.Idle
	}
	if c.Grace < 0 {
		c.Grace = def.Grace
	}
	return c
}

// IdleMonitor infers the end of the stream from sustained silence. On a
// confirmed quiet period it stops exactly once: it reports the success
// count, closes the transport and halts its heartbeat.
type IdleMonitor struct {
	cfg      IdleConfig
	stats    *obs.Stats
	reporter Reporter
	closer   io.Closer

	// sleep waits out the grace window; replaced by tests.
	sleep func(ctx context.Context, d time.Duration) error

	running  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
}

// NewIdleMonitor builds a monitor. reporter and closer may be nil.
func NewIdleMonitor(cfg IdleConfig, stats *obs.Stats, reporter Reporter, closer io.Closer) (*IdleMonitor, error) {
	if stats == nil {
		return nil, exception.ErrNilInstance
	}
	return &IdleMonitor{
		cfg:      cfg.withDefaults(),
		stats:    stats,
		reporter: reporter,
		closer:   closer,
		sleep:    backoff.Sleep,
		done:     make(chan struct{}),
	}, nil
}

// Done is closed after the stop sequence has completed.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Stopping reports whether quiescence has been confirmed.
func (m *IdleMonitor) Stopping() bool {
	return m.stopping.Load()
}

// Run beats every Heartbeat until the monitor stops or ctx is done.
func (m *IdleMonitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return exception.ErrMonitorAlreadyActive
	}

	logs.Infof("idle monitor started, heartbeat=%s idle=%s grace=%s", m.cfg.Heartbeat, m.cfg.Idle, m.cfg.Grace)
	ticker := time.NewTicker(m.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if m.Check(ctx) {
				return nil
			}
		}
	}
}

// Check runs one heartbeat and reports whether the monitor has stopped.
func (m *IdleMonitor) Check(ctx context.Context) bool {
	if m.stopping.Load() {
		return true
	}

	idle := m.stats.IdleFor()
	if idle < m.cfg.Idle {
		return false
	}

	touch := m.stats.LastTouch()
	total := m.stats.Total()
	logs.Infof("idle=%s, confirm again in %s", idle.Truncate(time.Second), m.cfg.Grace)

	if err := m.sleep(ctx, m.cfg.Grace); err != nil {
		return false
	}

	if touch != m.stats.LastTouch() || total != m.stats.Total() {
		logs.Info("new messages within the grace window, keep watching")
		return false
	}

	if !m.stopping.CompareAndSwap(false, true) {
		return true
	}
	m.stop(ctx)
	return true
}

func (m *IdleMonitor) stop(ctx context.Context) {
	defer close(m.done)

	success := m.stats.OK()
	logs.Infof("stream drained, ok=%d fail=%d, shutting down", success, m.stats.Fail())

	if m.reporter != nil {
		if err := m.reporter.ReportStream(ctx, success); err != nil {
			logs.Errorf("callback failed, err: %+v", err)
		}
	}
	if m.closer != nil {
		if err := m.closer.Close(); err != nil {
			logs.Warnf("close transport, err: %+v", err)
		}
	}
	logs.Info("consumer shutdown done")
}
