package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"equity/internal/model/enum"
	"equity/internal/notify"
	"equity/internal/obs"
	"equity/internal/ops"
	"equity/internal/ratecache"
	"equity/internal/repository"
	"equity/internal/stream"
	"equity/internal/stream/redisstream"
	"equity/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env overrides apply)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logs.Errorf("consumer failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateConsumer(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Profiling.Server != "" {
		profiler, err := startProfiler(cfg.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	pg, err := conn.New(cfg.Postgres.Option())
	if err != nil {
		return errors.Wrap(err, "open postgres")
	}
	defer pg.Close()

	store, err := repository.NewPostgres(pg.DB(), cfg.Tables)
	if err != nil {
		return err
	}
	rates := ratecache.New(store)
	// a failed preload falls back to lazy lookups
	_ = rates.Load(ctx)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	transport, err := redisstream.New(ctx, client, cfg.Consumer.Stream)
	if err != nil {
		_ = client.Close()
		return errors.Wrap(err, "join consumer group")
	}
	defer transport.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)
	stats := obs.NewStats(cfg.StatDir, enum.SourceStream.String(), obs.WithPersistEach())

	handler, err := stream.NewHandler(store, rates, stats, metrics)
	if err != nil {
		return err
	}
	worker, err := stream.NewWorker(transport, handler, stats, metrics, cfg.Consumer.ReceiveWait)
	if err != nil {
		return err
	}
	monitor, err := stream.NewIdleMonitor(cfg.Consumer.Idle, stats, notify.New(cfg.Callback), transport)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return worker.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return monitor.Run(gctx)
	})
	g.Go(func() error {
		rates.Refresh(gctx, cfg.Consumer.RateRefresh)
		return nil
	})
	g.Go(func() error {
		select {
		case <-sys.Shutdown():
			logs.Warnf("shutdown signal received, stop consuming")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, reg)
		})
	}

	err = g.Wait()
	if perr := stats.Persist(); perr != nil {
		logs.Warnf("persist %s stats, err: %+v", enum.SourceStream.String(), perr)
	}
	logs.Infof("consumer stopped, ok=%d fail=%d quiescent=%t", stats.OK(), stats.Fail(), monitor.Stopping())
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logs.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "serve metrics")
	}
	return nil
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName + ".consumer",
		ServerAddress:   cfg.Server,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return profiler, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(string, ...interface{})  {}
func (profilerLogger) Debugf(string, ...interface{}) {}
func (profilerLogger) Errorf(format string, args ...interface{}) {
	logs.Errorf(format, args...)
}
