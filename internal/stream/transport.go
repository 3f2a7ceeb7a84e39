// Package stream consumes transaction messages one at a time, applies them
// idempotently and stops itself once the stream has gone quiet.
package stream

import (
	"context"
	"time"
)

// Message is one delivery. ID is the transport's handle used to settle it.
type Message struct {
	ID      string
	Payload string
}

// Transport is an at-least-once shared subscription.
type Transport interface {
	// Receive waits up to wait for the next delivery. ok is false on timeout.
	Receive(ctx context.Context, wait time.Duration) (msg Message, ok bool, err error)
	// Ack consumes msg permanently.
	Ack(ctx context.Context, msg Message) error
	// Nack asks the transport to deliver msg again.
	Nack(ctx context.Context, msg Message) error
	Close() error
}

// Decision is the settlement of one message.
type Decision uint8

const (
	DecisionAck Decision = iota + 1
	DecisionRedeliver
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRedeliver:
		return "redeliver"
	default:
		return "unknown"
	}
}
