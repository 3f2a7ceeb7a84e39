// Package redisstream implements stream.Transport on a Redis Streams
// consumer group. Every consumer of the group shares the subscription.
package redisstream

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"equity/internal/stream"
	"equity/pkg/exception"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"
)

const (
	DefaultField     = "payload"
	DefaultClaimIdle = time.Minute
)

// Config names the stream, the group and this consumer.
type Config struct {
	Stream   string        `yaml:"stream"`
	Group    string        `yaml:"group"`
	Consumer string        `yaml:"consumer"`
	Field    string        `yaml:"field"`
	// ClaimIdle is how long a delivery may stay unacknowledged by a
	// crashed consumer before it is claimed by another one.
	ClaimIdle time.Duration `yaml:"claim_idle"`
}

func (c Config) withDefaults() Config {
	if c.Consumer == "" {
		c.Consumer = "consumer-" + uuid.NewString()
	}
	if c.Field == "" {
		c.Field = DefaultField
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = DefaultClaimIdle
	}
	return c
}

// Transport reads one entry at a time. Ack is XACK. Nack re-appends the
// payload and acknowledges the original in one MULTI block, so the entry
// is delivered again to whichever consumer reads next.
type Transport struct {
	client redis.UniversalClient
	cfg    Config
	closed atomic.Bool

	lastClaim  time.Time
	claimStart string
}

var _ stream.Transport = (*Transport)(nil)

// New creates the consumer group (and the stream) when missing.
func New(ctx context.Context, client redis.UniversalClient, cfg Config) (*Transport, error) {
	if client == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Stream == "" || cfg.Group == "" {
		return nil, exception.ErrInvalidArgument
	}
	cfg = cfg.withDefaults()

	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, err
	}

	logs.Infof("redis stream consumer ready, stream=%s group=%s consumer=%s", cfg.Stream, cfg.Group, cfg.Consumer)
	return &Transport{client: client, cfg: cfg, claimStart: "0-0"}, nil
}

func (t *Transport) Consumer() string {
	return t.cfg.Consumer
}

func (t *Transport) Receive(ctx context.Context, wait time.Duration) (stream.Message, bool, error) {
	if t.closed.Load() {
		return stream.Message{}, false, exception.ErrTransportClosed
	}

	if msg, ok, err := t.claim(ctx); err != nil || ok {
		return msg, ok, t.mapErr(err)
	}

	res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{t.cfg.Stream, ">"},
		Count:    1,
		Block:    wait,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return stream.Message{}, false, nil
	}
	if err != nil {
		return stream.Message{}, false, t.mapErr(err)
	}

	for _, s := range res {
		for _, m := range s.Messages {
			return toMessage(m, t.cfg.Field), true, nil
		}
	}
	return stream.Message{}, false, nil
}

// claim takes over one entry left pending by another consumer for longer
// than ClaimIdle. The scan resumes where it stopped until it runs dry,
// then waits ClaimIdle before scanning again.
func (t *Transport) claim(ctx context.Context) (stream.Message, bool, error) {
	if time.Since(t.lastClaim) < t.cfg.ClaimIdle {
		return stream.Message{}, false, nil
	}

	msgs, next, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   t.cfg.Stream,
		Group:    t.cfg.Group,
		MinIdle:  t.cfg.ClaimIdle,
		Start:    t.claimStart,
		Count:    1,
		Consumer: t.cfg.Consumer,
	}).Result()
	if err != nil {
		return stream.Message{}, false, err
	}
	if len(msgs) == 0 || next == "0-0" {
		t.lastClaim = time.Now()
		t.claimStart = "0-0"
	} else {
		t.claimStart = next
	}
	if len(msgs) == 0 {
		return stream.Message{}, false, nil
	}

	logs.Warnf("claimed stale entry %s", msgs[0].ID)
	return toMessage(msgs[0], t.cfg.Field), true, nil
}

func (t *Transport) Ack(ctx context.Context, msg stream.Message) error {
	return t.mapErr(t.client.XAck(ctx, t.cfg.Stream, t.cfg.Group, msg.ID).Err())
}

func (t *Transport) Nack(ctx context.Context, msg stream.Message) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: t.cfg.Stream,
			Values: map[string]interface{}{t.cfg.Field: msg.Payload},
		})
		pipe.XAck(ctx, t.cfg.Stream, t.cfg.Group, msg.ID)
		return nil
	})
	return t.mapErr(err)
}

func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.client.Close()
}

func (t *Transport) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if t.closed.Load() || errors.Is(err, redis.ErrClosed) {
		return exception.ErrTransportClosed
	}
	return err
}

func toMessage(m redis.XMessage, field string) stream.Message {
	msg := stream.Message{ID: m.ID}
	switch v := m.Values[field].(type) {
	case string:
		msg.Payload = v
	case []byte:
		msg.Payload = string(v)
	}
	return msg
}

// Publish appends one payload to the stream.
func Publish(ctx context.Context, client redis.UniversalClient, streamName, field, payload string) (string, error) {
	if field == "" {
		field = DefaultField
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{field: payload},
	}).Result()
}
