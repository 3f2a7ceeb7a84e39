// Package ratecache is a read-through currency to CNY rate cache.
package ratecache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"equity/internal/model"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/singleflight"
)

// Source is the backing rate table.
type Source interface {
	ListRates(ctx context.Context) ([]model.FxRate, error)
	// FindRate reports found=false for a currency with no configured rate.
	FindRate(ctx context.Context, currency string) (rate decimal.Decimal, found bool, err error)
}

// Cache preloads every rate, fills misses through a single backing lookup
// per key, and pins CNY to 1. Unknown currencies are cached as zero.
type Cache struct {
	src   Source
	rates sync.Map // string -> decimal.Decimal
	group singleflight.Group

	lookups atomic.Int64
}

// New creates an empty cache over src. Call Load to preload it.
func New(src Source) *Cache {
	c := &Cache{src: src}
	c.rates.Store(model.CNY, decimal.NewFromInt(1))
	return c
}

// Load reads every rate from the source into the cache. A failed preload
// leaves the cache usable; misses are filled lazily.
func (c *Cache) Load(ctx context.Context) error {
	rows, err := c.src.ListRates(ctx)
	if err != nil {
		logs.Warnf("fx cache preload failed, will lazy-load on misses, err: %+v", err)
		return errors.Wrap(err, "list rates")
	}
	n := 0
	for _, r := range rows {
		ccy := normalize(r.Currency)
		if ccy == "" || ccy == model.CNY {
			continue
		}
		c.rates.Store(ccy, r.Rate)
		n++
	}
	logs.Infof("fx cache preloaded: %d currencies", n+1)
	return nil
}

// Rate returns the CNY rate of currency. An unknown currency yields zero
// and no error. A source failure is returned and not cached.
func (c *Cache) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	ccy := normalize(currency)
	if ccy == "" {
		return decimal.Zero, nil
	}
	if ccy == model.CNY {
		return decimal.NewFromInt(1), nil
	}
	if v, ok := c.rates.Load(ccy); ok {
		return v.(decimal.Decimal), nil
	}

	v, err, _ := c.group.Do(ccy, func() (any, error) {
		if v, ok := c.rates.Load(ccy); ok {
			return v, nil
		}
		c.lookups.Add(1)
		rate, found, err := c.src.FindRate(ctx, ccy)
		if err != nil {
			return nil, errors.Wrapf(err, "find rate %s", ccy)
		}
		if !found {
			logs.Warnf("fx rate not found for %s, caching zero", ccy)
			rate = decimal.Zero
		}
		c.rates.Store(ccy, rate)
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// ToCNY converts amount in currency into CNY.
func (c *Cache) ToCNY(ctx context.Context, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Lookups is the number of backing lookups issued for misses.
func (c *Cache) Lookups() int64 {
	return c.lookups.Load()
}

// Refresh reloads every rate at interval until ctx is done. A non-positive
// interval disables refreshing and returns immediately.
func (c *Cache) Refresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Load(ctx)
		}
	}
}

func normalize(ccy string) string {
	return strings.ToUpper(strings.TrimSpace(ccy))
}
