package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"equity/internal/ops"
	"equity/internal/repository"
	"equity/pkg/conn"
	"equity/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env overrides apply)")
	rates := flag.String("rates", "", "Seed rates to CNY, e.g. USD=7.12,HKD=0.91")
	dryRun := flag.Bool("dry-run", false, "Print the DDL without executing it")
	flag.Parse()

	if err := run(*configPath, *rates, *dryRun); err != nil {
		logs.Errorf("migrate failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(configPath, rateList string, dryRun bool) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	seed, err := parseRates(rateList)
	if err != nil {
		return err
	}

	if dryRun {
		for _, stmt := range cfg.Tables.Statements() {
			os.Stdout.WriteString(stmt + ";\n")
		}
		return nil
	}

	if err := cfg.ValidateStore(); err != nil {
		return err
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logs.Infof("schema ready, %d statements applied", len(cfg.Tables.Statements()))

	if err := store.SeedRates(ctx, seed); err != nil {
		return err
	}
	if len(seed) != 0 {
		logs.Infof("seeded %d rates", len(seed))
	}
	return nil
}

// parseRates reads "CCY=rate" pairs separated by commas.
func parseRates(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		ccy, rate, ok := strings.Cut(pair, "=")
		ccy = strings.ToUpper(strings.TrimSpace(ccy))
		rate = strings.TrimSpace(rate)
		if !ok || len(ccy) != 3 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "rate %q, want CCY=rate", pair)
		}
		if _, err := decimal.NewFromString(rate); err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "rate %q is not a number", pair)
		}
		out[ccy] = rate
	}
	return out, nil
}
