// Package ops loads the runtime configuration shared by every binary.
package ops

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"equity/internal/bulk"
	"equity/internal/notify"
	"equity/internal/repository"
	"equity/internal/stream"
	"equity/internal/stream/redisstream"
	"equity/pkg/conn"
	"equity/pkg/exception"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML config layout.
type Config struct {
	StatDir   string            `yaml:"stat_dir"`
	Postgres  PostgresConfig    `yaml:"postgres"`
	Redis     RedisConfig       `yaml:"redis"`
	Tables    repository.Tables `yaml:"tables"`
	Loader    LoaderConfig      `yaml:"loader"`
	Consumer  ConsumerConfig    `yaml:"consumer"`
	Callback  notify.Config     `yaml:"callback"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Profiling ProfilingConfig   `yaml:"profiling"`
}

// PostgresConfig addresses the store.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

// Option converts to the connection options of pkg/conn.
func (c PostgresConfig) Option() conn.Option {
	return conn.Option{
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Database:   c.Database,
		SSLMode:    c.SSLMode,
		ConnString: c.DSN,
		MaxConns:   c.MaxConns,
	}
}

// RedisConfig addresses the stream broker.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FileSource is one input file of the loader.
type FileSource struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Name    string `yaml:"name"`
}

// Path is Dir joined with Name.
func (f FileSource) Path() string {
	return filepath.Join(f.Dir, f.Name)
}

// LoaderConfig drives cmd/loader.
type LoaderConfig struct {
	Equity    FileSource  `yaml:"equity"`
	Relation  FileSource  `yaml:"relation"`
	BadSuffix string      `yaml:"bad_suffix"`
	Bulk      bulk.Config `yaml:"bulk"`
}

// BadPath is the quarantine file next to src.
func (c LoaderConfig) BadPath(src FileSource) string {
	return src.Path() + c.BadSuffix
}

// ConsumerConfig drives cmd/consumer.
type ConsumerConfig struct {
	Stream      redisstream.Config `yaml:"stream"`
	ReceiveWait time.Duration      `yaml:"receive_wait"`
	Idle        stream.IdleConfig  `yaml:"idle"`
	// RateRefresh reloads every FX rate at this interval. 0 never reloads.
	RateRefresh time.Duration `yaml:"rate_refresh"`
}

// MetricsConfig exposes prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ProfilingConfig enables continuous profiling when Server is set.
type ProfilingConfig struct {
	Server  string `yaml:"server"`
	AppName string `yaml:"app_name"`
}

// Load reads .env (if present), the YAML file at path (if set), then
// environment overrides, then fills defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrapf(exception.ErrConfiguration, "load .env: %s", err.Error())
	}
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(exception.ErrConfiguration, "read %s: %s", path, err.Error())
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(exception.ErrConfiguration, "parse %s: %s", path, err.Error())
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("FILE_PATH", &cfg.Loader.Equity.Dir)
	str("FILE_PATH", &cfg.Loader.Relation.Dir)
	str("FLE_PATH", &cfg.Loader.Relation.Dir)
	str("FILE_NAME_EQUITY", &cfg.Loader.Equity.Name)
	str("FILE_NAME_RELATION", &cfg.Loader.Relation.Name)
	str("STAT_DIR", &cfg.StatDir)
	str("PG_DSN", &cfg.Postgres.DSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("STREAM_NAME", &cfg.Consumer.Stream.Stream)
	str("STREAM_GROUP", &cfg.Consumer.Stream.Group)
	str("STREAM_CONSUMER", &cfg.Consumer.Stream.Consumer)
	str("CALLBACK_URL", &cfg.Callback.URL)
	str("CALLBACK_ACC", &cfg.Callback.Account)
	str("CALLBACK_PWD", &cfg.Callback.Password)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("PYROSCOPE_SERVER", &cfg.Profiling.Server)

	for key, dst := range map[string]*bool{
		"LOADER_EQUITY_ENABLED":   &cfg.Loader.Equity.Enabled,
		"LOADER_RELATION_ENABLED": &cfg.Loader.Relation.Enabled,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(exception.ErrConfiguration, "%s=%q is not a bool", key, v)
		}
		*dst = b
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.StatDir == "" {
		cfg.StatDir = "/tmp/equity-stats"
	}
	if cfg.Loader.BadSuffix == "" {
		cfg.Loader.BadSuffix = ".bad"
	}
	if cfg.Consumer.Stream.Stream == "" {
		cfg.Consumer.Stream.Stream = "equity.transactions"
	}
	if cfg.Consumer.Stream.Group == "" {
		cfg.Consumer.Stream.Group = "equity-consumer"
	}
	if cfg.Consumer.ReceiveWait <= 0 {
		cfg.Consumer.ReceiveWait = stream.DefaultReceiveWait
	}
	def := stream.DefaultIdleConfig()
	if cfg.Consumer.Idle.Heartbeat <= 0 {
		cfg.Consumer.Idle.Heartbeat = def.Heartbeat
	}
	if cfg.Consumer.Idle.Idle <= 0 {
		cfg.Consumer.Idle.Idle = def.Idle
	}
	if cfg.Consumer.Idle.Grace <= 0 {
		cfg.Consumer.Idle.Grace = def.Grace
	}
	if cfg.Callback.MaxRetries <= 0 {
		cfg.Callback.MaxRetries = 3
	}
	if cfg.Callback.Backoff <= 0 {
		cfg.Callback.Backoff = 1500 * time.Millisecond
	}
	if cfg.Profiling.AppName == "" {
		cfg.Profiling.AppName = "equity"
	}
}

func (cfg Config) validatePostgres() error {
	p := cfg.Postgres
	if p.DSN == "" && p.Host == "" && p.Database == "" {
		return errors.Wrap(exception.ErrConfiguration, "postgres dsn or host/database is required")
	}
	return nil
}

// ValidateLoader checks what cmd/loader needs before it touches any file.
func (cfg Config) ValidateLoader() error {
	if err := cfg.validatePostgres(); err != nil {
		return err
	}
	for name, src := range map[string]FileSource{"equity": cfg.Loader.Equity, "relation": cfg.Loader.Relation} {
		if !src.Enabled {
			continue
		}
		if src.Dir == "" || src.Name == "" {
			return errors.Wrapf(exception.ErrConfiguration, "%s file dir and name are required", name)
		}
		info, err := os.Stat(src.Path())
		if err != nil || !info.Mode().IsRegular() {
			return errors.Wrapf(exception.ErrConfiguration, "%s file %s is not a regular file", name, src.Path())
		}
	}
	return nil
}

// ValidateConsumer checks what cmd/consumer needs.
func (cfg Config) ValidateConsumer() error {
	if err := cfg.validatePostgres(); err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.Wrap(exception.ErrConfiguration, "redis addr is required")
	}
	if cfg.Consumer.Stream.Stream == "" || cfg.Consumer.Stream.Group == "" {
		return errors.Wrap(exception.ErrConfiguration, "stream name and group are required")
	}
	return nil
}

// ValidateStore checks what the read and migration tools need.
func (cfg Config) ValidateStore() error {
	return cfg.validatePostgres()
}
