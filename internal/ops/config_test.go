package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"equity/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

const sampleYAML = `
stat_dir: /var/lib/equity
postgres:
  host: db
  database: equity
  max_conns: 20
loader:
  equity:
    enabled: true
    dir: /data
    name: equity.txt
  bulk:
    batch_size: 1000
    poll_timeout: 250ms
consumer:
  stream:
    stream: tx
    group: g1
  idle:
    idle: 1m
  rate_refresh: 10m
callback:
  url: http://callback.local/cb
  backoff: 2s
`

func TestLoadWithYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := LoadWith(path, env(map[string]string{
		"FILE_NAME_EQUITY":        "override.txt",
		"FILE_NAME_RELATION":      "rel.txt",
		"FILE_PATH":               "/mnt",
		"FLE_PATH":                "/rel",
		"CALLBACK_ACC":            "acc",
		"LOADER_RELATION_ENABLED": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/equity", cfg.StatDir)
	assert.Equal(t, "/mnt/override.txt", cfg.Loader.Equity.Path())
	assert.Equal(t, "/rel/rel.txt", cfg.Loader.Relation.Path())
	assert.True(t, cfg.Loader.Relation.Enabled)
	assert.Equal(t, "/mnt/override.txt.bad", cfg.Loader.BadPath(cfg.Loader.Equity))
	assert.Equal(t, 1000, cfg.Loader.Bulk.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Loader.Bulk.PollTimeout)
	assert.Equal(t, "tx", cfg.Consumer.Stream.Stream)
	assert.Equal(t, time.Minute, cfg.Consumer.Idle.Idle)
	assert.Equal(t, 10*time.Second, cfg.Consumer.Idle.Grace)
	assert.Equal(t, 5*time.Second, cfg.Consumer.Idle.Heartbeat)
	assert.Equal(t, 10*time.Minute, cfg.Consumer.RateRefresh)
	assert.Equal(t, 2*time.Second, cfg.Callback.Backoff)
	assert.Equal(t, 3, cfg.Callback.MaxRetries)
	assert.Equal(t, "acc", cfg.Callback.Account)
	assert.EqualValues(t, 20, cfg.Postgres.Option().MaxConns)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/equity-stats", cfg.StatDir)
	assert.Equal(t, ".bad", cfg.Loader.BadSuffix)
	assert.Equal(t, "equity.transactions", cfg.Consumer.Stream.Stream)
	assert.Equal(t, time.Second, cfg.Consumer.ReceiveWait)
	assert.Equal(t, 30*time.Second, cfg.Consumer.Idle.Idle)
	assert.Equal(t, 1500*time.Millisecond, cfg.Callback.Backoff)
	assert.Zero(t, cfg.Consumer.RateRefresh)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.True(t, exception.Is(err, exception.ErrConfiguration))
	assert.Contains(t, err.Error(), "missing.yaml")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("postgres: [\n"), 0o644))
	_, err = LoadWith(bad, env(nil))
	assert.True(t, exception.Is(err, exception.ErrConfiguration))

	_, err = LoadWith("", env(map[string]string{"LOADER_EQUITY_ENABLED": "maybe"}))
	assert.True(t, exception.Is(err, exception.ErrConfiguration))
}

func TestValidateLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "equity.txt"), nil, 0o644))

	testCases := []struct {
		desc string
		env  map[string]string
		ok   bool
	}{
		{"no postgres", map[string]string{}, false},
		{"nothing enabled", map[string]string{"PG_DSN": "postgres://x"}, true},
		{"equity missing name", map[string]string{"PG_DSN": "postgres://x", "LOADER_EQUITY_ENABLED": "1", "FILE_PATH": dir}, false},
		{"equity missing file", map[string]string{"PG_DSN": "postgres://x", "LOADER_EQUITY_ENABLED": "1", "FILE_PATH": dir, "FILE_NAME_EQUITY": "nope.txt"}, false},
		{"equity ok", map[string]string{"PG_DSN": "postgres://x", "LOADER_EQUITY_ENABLED": "1", "FILE_PATH": dir, "FILE_NAME_EQUITY": "equity.txt"}, true},
		{"relation dir is not a file", map[string]string{"PG_DSN": "postgres://x", "LOADER_RELATION_ENABLED": "1", "FLE_PATH": filepath.Dir(dir), "FILE_NAME_RELATION": filepath.Base(dir)}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := LoadWith("", env(tc.env))
			require.NoError(t, err)
			err = cfg.ValidateLoader()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, exception.Is(err, exception.ErrConfiguration))
			}
		})
	}
}

func TestValidateConsumer(t *testing.T) {
	cfg, err := LoadWith("", env(map[string]string{"PG_DSN": "postgres://x"}))
	require.NoError(t, err)
	assert.True(t, exception.Is(cfg.ValidateConsumer(), exception.ErrConfiguration))

	cfg.Redis.Addr = "localhost:6379"
	assert.NoError(t, cfg.ValidateConsumer())
	assert.NoError(t, cfg.ValidateStore())
}
