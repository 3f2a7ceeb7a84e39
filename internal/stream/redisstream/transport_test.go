package redisstream

import (
	"context"
	"testing"
	"time"

	"equity/pkg/exception"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestToMessage(t *testing.T) {
	testCases := []struct {
		desc string
		msg  redis.XMessage
		want string
	}{
		{"string value", redis.XMessage{ID: "1-0", Values: map[string]interface{}{"payload": "a|b"}}, "a|b"},
		{"bytes value", redis.XMessage{ID: "1-1", Values: map[string]interface{}{"payload": []byte("c|d")}}, "c|d"},
		{"missing field", redis.XMessage{ID: "1-2", Values: map[string]interface{}{"other": "x"}}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := toMessage(tc.msg, DefaultField)
			assert.Equal(t, tc.msg.ID, got.ID)
			assert.Equal(t, tc.want, got.Payload)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Stream: "s", Group: "g"}.withDefaults()
	assert.Equal(t, DefaultField, cfg.Field)
	assert.Equal(t, DefaultClaimIdle, cfg.ClaimIdle)
	assert.Contains(t, cfg.Consumer, "consumer-")

	other := Config{Stream: "s", Group: "g"}.withDefaults()
	assert.NotEqual(t, cfg.Consumer, other.Consumer)

	kept := Config{Consumer: "c1", ClaimIdle: time.Second}.withDefaults()
	assert.Equal(t, "c1", kept.Consumer)
	assert.Equal(t, time.Second, kept.ClaimIdle)
}

func TestNewValidates(t *testing.T) {
	_, err := New(context.Background(), nil, Config{})
	assert.ErrorIs(t, err, exception.ErrNilInstance)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = New(context.Background(), client, Config{Stream: "s"})
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestClosedTransportRefusesReceive(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	tr := &Transport{client: client, cfg: Config{Stream: "s", Group: "g"}.withDefaults()}
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	_, ok, err := tr.Receive(context.Background(), time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, exception.ErrTransportClosed)
}
