package stream

import (
	"context"
	"sync"
	"time"

	"equity/internal/obs"
	"equity/internal/ratecache"
	"equity/internal/repository/repositorytest"
	"equity/pkg/exception"
)

type fakeTransport struct {
	mu          sync.Mutex
	queue       []Message
	acked       []Message
	nacked      []Message
	receiveErrs []error
	closed      bool
}

func newFakeTransport(payloads ...string) *fakeTransport {
	t := &fakeTransport{}
	for i, p := range payloads {
		t.queue = append(t.queue, Message{ID: string(rune('a' + i)), Payload: p})
	}
	return t
}

func (t *fakeTransport) Receive(_ context.Context, wait time.Duration) (Message, bool, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Message{}, false, exception.ErrTransportClosed
	}
	if len(t.receiveErrs) != 0 {
		err := t.receiveErrs[0]
		t.receiveErrs = t.receiveErrs[1:]
		t.mu.Unlock()
		return Message{}, false, err
	}
	if len(t.queue) == 0 {
		t.mu.Unlock()
		time.Sleep(min(wait, time.Millisecond))
		return Message{}, false, nil
	}
	msg := t.queue[0]
	t.queue = t.queue[1:]
	t.mu.Unlock()
	return msg, true, nil
}

func (t *fakeTransport) Ack(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acked = append(t.acked, msg)
	return nil
}

// Nack puts msg back at the tail, like a broker redelivery.
func (t *fakeTransport) Nack(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nacked = append(t.nacked, msg)
	t.queue = append(t.queue, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) settled() (acked, nacked, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.acked), len(t.nacked), len(t.queue)
}

type fixture struct {
	mem     *repositorytest.Memory
	rates   *ratecache.Cache
	stats   *obs.Stats
	metrics *obs.Metrics
	handler *Handler
}

func newFixture(statDir string) *fixture {
	mem := repositorytest.NewMemory()
	f := &fixture{
		mem:     mem,
		rates:   ratecache.New(mem),
		stats:   obs.NewStats(statDir, "mq", obs.WithPersistEach()),
		metrics: obs.NewMetrics(nil),
	}
	h, err := NewHandler(mem, f.rates, f.stats, f.metrics)
	if err != nil {
		panic(err)
	}
	f.handler = h
	return f
}
