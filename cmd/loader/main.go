package main

import (
	"context"
	"flag"
	"os"
	"time"

	"equity/internal/bulk"
	"equity/internal/model/enum"
	"equity/internal/notify"
	"equity/internal/obs"
	"equity/internal/ops"
	"equity/internal/repository"
	"equity/internal/shard"
	"equity/pkg/conn"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env overrides apply)")
	skipCallback := flag.Bool("no-callback", false, "Do not post the completion callback")
	flag.Parse()

	if err := run(*configPath, *skipCallback); err != nil {
		logs.Errorf("loader failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(configPath string, skipCallback bool) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateLoader(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Warnf("shutdown signal received, aborting load")
			cancel()
		case <-ctx.Done():
		}
	}()

	pool, err := conn.NewPool(ctx, cfg.Postgres.Option())
	if err != nil {
		return errors.Wrap(err, "open pgx pool")
	}
	defer pool.Close()

	copier, err := repository.NewCopyLoader(pool, cfg.Tables)
	if err != nil {
		return err
	}

	if cfg.Loader.Equity.Enabled {
		if err := loadEquity(ctx, cfg, copier); err != nil {
			// a dead shard does not stop the relation load or the callback
			logs.Errorf("equity load, err: %+v", err)
			if ctx.Err() != nil {
				return err
			}
		}
	}
	if cfg.Loader.Relation.Enabled {
		if err := loadRelation(ctx, cfg, copier); err != nil {
			logs.Errorf("relation load, err: %+v", err)
		}
	}

	if skipCallback {
		return nil
	}
	return report(ctx, cfg)
}

func loadEquity(ctx context.Context, cfg ops.Config, copier *repository.CopyLoader) error {
	src := cfg.Loader.Equity
	f, err := os.Open(src.Path())
	if err != nil {
		return errors.Wrapf(err, "open %s", src.Path())
	}
	defer f.Close()

	sink, err := bulk.CreateBadSink(cfg.Loader.BadPath(src))
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logs.Warnf("close bad sink, err: %+v", err)
		}
	}()

	open := func(ctx context.Context, s shard.Shard) (bulk.Loader, error) {
		session, err := copier.Equity(ctx, s)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	pipeline, err := bulk.NewPipeline(cfg.Loader.Bulk, open, obs.NewStats(cfg.StatDir, enum.SourceEquity.String()), nil)
	if err != nil {
		return err
	}

	logs.Infof("loading equity file %s", src.Path())
	res, err := pipeline.Run(ctx, f, sink)
	for i, n := range res.Dropped {
		if n != 0 {
			logs.Warnf("shard %s dropped %d rows", shard.FromIndex(i), n)
		}
	}
	return err
}

func loadRelation(ctx context.Context, cfg ops.Config, copier *repository.CopyLoader) error {
	src := cfg.Loader.Relation
	f, err := os.Open(src.Path())
	if err != nil {
		return errors.Wrapf(err, "open %s", src.Path())
	}
	defer f.Close()

	sink, err := bulk.CreateBadSink(cfg.Loader.BadPath(src))
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logs.Warnf("close bad sink, err: %+v", err)
		}
	}()

	session, err := copier.Relation(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	logs.Infof("loading relation file %s", src.Path())
	loader := bulk.NewRelationLoader(cfg.Loader.Bulk, obs.NewStats(cfg.StatDir, enum.SourceRelation.String()), nil)
	_, err = loader.Run(ctx, f, sink, session)
	return err
}

// report reads all counters back from the stat dir, so a disabled load
// reports whatever a previous run left behind.
func report(ctx context.Context, cfg ops.Config) error {
	equity := obs.ReadCounts(cfg.StatDir, enum.SourceEquity.String())
	relation := obs.ReadCounts(cfg.StatDir, enum.SourceRelation.String())

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	err := notify.New(cfg.Callback).ReportFiles(ctx, []notify.FileCount{
		{Name: cfg.Loader.Equity.Name, Success: equity.OK, Fail: equity.Fail},
		{Name: cfg.Loader.Relation.Name, Success: relation.OK, Fail: relation.Fail},
	})
	if err != nil {
		// delivery failure is logged only
		logs.Errorf("completion callback, err: %+v", err)
	}
	return nil
}
