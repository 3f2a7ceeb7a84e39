// Package query answers read-side questions over the sharded store.
// Every amount leaves this package truncated to 2 decimal places.
package query

import (
	"context"
	"sort"
	"sync"
	"time"

	"equity/internal/model"
	"equity/internal/repository"
	"equity/internal/shard"
	"equity/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"golang.org/x/sync/errgroup"
)

// HoldingItem is one currency balance of a customer.
type HoldingItem struct {
	AccountNo string          `json:"accountNo"`
	Currency  string          `json:"ccy"`
	Balance   decimal.Decimal `json:"balance"`
	AsOf      time.Time       `json:"bizDt"`
}

// CustomerHoldings lists a customer's balances and their CNY total.
type CustomerHoldings struct {
	CustomerNo string          `json:"custNo"`
	Total      decimal.Decimal `json:"totalAmt"`
	Detail     []HoldingItem   `json:"detail"`
}

// CustomerAmount is one customer's net change on a day.
type CustomerAmount struct {
	CustomerNo string          `json:"custNo"`
	Amount     decimal.Decimal `json:"amount"`
}

// DayBlock groups the customers with a nonzero net change on one day.
type DayBlock struct {
	YMD       string           `json:"ymd"`
	Customers []CustomerAmount `json:"custList"`
}

type Service struct {
	reader repository.Reader
}

func New(reader repository.Reader) (*Service, error) {
	if reader == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "reader")
	}
	return &Service{reader: reader}, nil
}

func normalize(customerNo string) (string, shard.Shard, error) {
	s, err := shard.Of(customerNo)
	if err != nil {
		return "", 0, err
	}
	return shard.NormalizeCustomerNo(customerNo), s, nil
}

// ByCustomer returns the holdings of one customer.
func (svc *Service) ByCustomer(ctx context.Context, customerNo string) (CustomerHoldings, error) {
	cust, s, err := normalize(customerNo)
	if err != nil {
		return CustomerHoldings{}, err
	}

	rows, err := svc.reader.Holdings(ctx, s, cust)
	if err != nil {
		return CustomerHoldings{}, err
	}

	total := decimal.Zero
	detail := make([]HoldingItem, 0, len(rows))
	for _, r := range rows {
		total = total.Add(r.Value())
		detail = append(detail, HoldingItem{
			AccountNo: r.AccountNo,
			Currency:  r.Currency,
			Balance:   r.Balance,
			AsOf:      r.AsOf,
		})
	}
	return CustomerHoldings{CustomerNo: cust, Total: model.Truncate2(total), Detail: detail}, nil
}

// RangeTotal sums the CNY value of every customer in [from, to] across
// all shards in parallel.
func (svc *Service) RangeTotal(ctx context.Context, from, to string) (decimal.Decimal, error) {
	lo, _, err := normalize(from)
	if err != nil {
		return decimal.Zero, err
	}
	hi, _, err := normalize(to)
	if err != nil {
		return decimal.Zero, err
	}
	if lo > hi {
		return decimal.Zero, errors.Wrapf(exception.ErrInvalidArgument, "range %s > %s", lo, hi)
	}

	parts := make([]decimal.Decimal, shard.Count)
	eg, ctx := errgroup.WithContext(ctx)
	for _, s := range shard.All() {
		eg.Go(func() error {
			part, err := svc.reader.SumRange(ctx, s, lo, hi)
			if err != nil {
				return err
			}
			parts[s.Index()] = part
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return decimal.Zero, err
	}

	return model.Truncate2(decimal.Sum(decimal.Zero, parts...)), nil
}

// ManagerDaily lists, per day ascending, the customers of managerCode with
// a nonzero truncated net change, sorted by customer number. A zero from
// or to leaves that side of the date range open.
func (svc *Service) ManagerDaily(ctx context.Context, managerCode string, from, to time.Time) ([]DayBlock, error) {
	customers, err := svc.reader.CustomersOf(ctx, managerCode)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return []DayBlock{}, nil
	}

	byShard := make(map[shard.Shard][]string)
	for _, c := range customers {
		cust, s, err := normalize(c)
		if err != nil {
			continue
		}
		byShard[s] = append(byShard[s], cust)
	}

	var (
		mu    sync.Mutex
		byDay = make(map[string][]CustomerAmount)
	)
	eg, ctx := errgroup.WithContext(ctx)
	for s, list := range byShard {
		eg.Go(func() error {
			rows, err := svc.reader.DailyNetChanges(ctx, s, list, from, to)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range rows {
				amount := r.Exposed()
				if amount.IsZero() {
					continue
				}
				byDay[r.YMD] = append(byDay[r.YMD], CustomerAmount{CustomerNo: r.CustomerNo, Amount: amount})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]DayBlock, 0, len(byDay))
	for ymd, list := range byDay {
		sort.Slice(list, func(i, j int) bool { return list[i].CustomerNo < list[j].CustomerNo })
		out = append(out, DayBlock{YMD: ymd, Customers: list})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YMD < out[j].YMD })
	return out, nil
}
