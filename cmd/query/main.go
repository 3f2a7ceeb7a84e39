package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"equity/internal/model"
	"equity/internal/ops"
	"equity/internal/query"
	"equity/internal/repository"
	"equity/pkg/conn"
	"equity/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env overrides apply)")
	op := flag.String("op", "customer", "Query: customer | range | manager")
	customer := flag.String("customer", "", "Customer number (op=customer)")
	from := flag.String("from", "", "First customer (op=range) or first day YYYYMMDD (op=manager)")
	to := flag.String("to", "", "Last customer (op=range) or last day YYYYMMDD (op=manager)")
	manager := flag.String("manager", "", "Manager code (op=manager)")
	timeout := flag.Duration("timeout", 30*time.Second, "Query timeout")
	flag.Parse()

	if err := run(*configPath, *op, *customer, *from, *to, *manager, *timeout); err != nil {
		logs.Errorf("query failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(configPath, op, customer, from, to, manager string, timeout time.Duration) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
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
	svc, err := query.New(store)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out any
	switch op {
	case "customer":
		out, err = svc.ByCustomer(ctx, customer)
	case "range":
		total, rerr := svc.RangeTotal(ctx, from, to)
		out, err = map[string]any{"from": from, "to": to, "totalAmt": total}, rerr
	case "manager":
		lo, perr := parseDay(from)
		if perr != nil {
			return perr
		}
		hi, perr := parseDay(to)
		if perr != nil {
			return perr
		}
		out, err = svc.ManagerDaily(ctx, manager, lo, hi)
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "unknown op %q", op)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseDay treats an empty value as an open bound.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(model.YMDLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(exception.ErrInvalidArgument, "day %q, want %s", s, model.YMDLayout)
	}
	return t, nil
}
