package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePublishPoll(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Publish(t.Context(), []byte("a"), nil))
	require.NoError(t, q.Publish(t.Context(), []byte("b"), nil))
	assert.Equal(t, 2, q.Len())

	line, ok := q.Poll(time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "a", string(line))
	line, ok = q.Poll(time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "b", string(line))

	_, ok = q.Poll(5 * time.Millisecond)
	assert.False(t, ok)
}

func TestQueuePublishBlocksUntilRoom(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Publish(t.Context(), []byte("first"), nil))

	done := make(chan error, 1)
	go func() {
		done <- q.Publish(context.Background(), []byte("second"), nil)
	}()

	select {
	case <-done:
		t.Fatal("publish should block while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := q.Poll(time.Millisecond)
	require.True(t, ok)
	require.NoError(t, <-done)
	assert.Equal(t, 1, q.Len())
}

func TestQueuePublishAbort(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Publish(t.Context(), []byte("x"), nil))

	abort := make(chan struct{})
	close(abort)
	assert.ErrorIs(t, q.Publish(t.Context(), []byte("y"), abort), ErrQueueClosed)

	q.Close()
	assert.ErrorIs(t, q.Publish(t.Context(), []byte("z"), nil), ErrQueueClosed)
	_, ok := q.Poll(time.Millisecond)
	assert.True(t, ok, "queued lines survive Close")
}
