// Package repository persists equity snapshots, daily CNY aggregates,
// customer relations, processed transaction ids and FX rates.
//
// Postgres is the production implementation. Memory keeps the same
// semantics in process and backs the pipeline tests.
package repository

import (
	"context"
	"time"

	"equity/internal/model"
	"equity/internal/shard"

	"github.com/shopspring/decimal"
)

// Tables names every relation the repository touches. Sharded tables are
// stored as prefixes and get the 2-digit shard suffix appended.
type Tables struct {
	SnapshotPrefix  string `yaml:"snapshot_prefix"`
	AggregatePrefix string `yaml:"aggregate_prefix"`
	Relation        string `yaml:"relation"`
	Inbox           string `yaml:"inbox"`
	Rates           string `yaml:"rates"`
}

// DefaultTables returns the production table layout.
func DefaultTables() Tables {
	return Tables{
		SnapshotPrefix:  "tb_customer_equity_",
		AggregatePrefix: "agg_cust_daily_",
		Relation:        "tb_customer_relation",
		Inbox:           "mq_inbox",
		Rates:           "base_cur",
	}
}

func (t Tables) withDefaults() Tables {
	def := DefaultTables()
	if t.SnapshotPrefix == "" {
		t.SnapshotPrefix = def.SnapshotPrefix
	}
	if t.AggregatePrefix == "" {
		t.AggregatePrefix = def.AggregatePrefix
	}
	if t.Relation == "" {
		t.Relation = def.Relation
	}
	if t.Inbox == "" {
		t.Inbox = def.Inbox
	}
	if t.Rates == "" {
		t.Rates = def.Rates
	}
	return t
}

// Snapshot returns the snapshot table of s.
func (t Tables) Snapshot(s shard.Shard) string {
	return s.Table(t.SnapshotPrefix)
}

// Aggregate returns the daily aggregate table of s.
func (t Tables) Aggregate(s shard.Shard) string {
	return s.Table(t.AggregatePrefix)
}

// Tx is the unit of work applied for one stream transaction.
// Everything done through a Tx commits or rolls back together.
type Tx interface {
	// MarkProcessed records txID. inserted is false when it was already recorded.
	MarkProcessed(ctx context.Context, txID string) (inserted bool, err error)
	// UpsertSnapshotIfNewer stores snap unless the stored row is as new or newer.
	UpsertSnapshotIfNewer(ctx context.Context, s shard.Shard, snap model.BalanceSnapshot) (applied bool, err error)
	// AddDailyNetChange adds delta to the (ymd, customerNo) aggregate, creating it at 0.
	AddDailyNetChange(ctx context.Context, s shard.Shard, ymd, customerNo string, delta decimal.Decimal) error
}

// Ledger runs fn atomically. A non-nil error from fn rolls everything back.
type Ledger interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Holding is one currency balance of a customer with its CNY value.
type Holding struct {
	model.BalanceSnapshot
	Rate decimal.Decimal
}

// Value is Balance converted to CNY, full precision.
func (h Holding) Value() decimal.Decimal {
	return h.Balance.Mul(h.Rate)
}

// Reader is the read side used by the query tool.
type Reader interface {
	Holdings(ctx context.Context, s shard.Shard, customerNo string) ([]Holding, error)
	SumRange(ctx context.Context, s shard.Shard, fromCustomerNo, toCustomerNo string) (decimal.Decimal, error)
	CustomersOf(ctx context.Context, managerCode string) ([]string, error)
	// DailyNetChanges lists aggregate rows of customerNos. A zero from or to leaves that side open.
	DailyNetChanges(ctx context.Context, s shard.Shard, customerNos []string, from, to time.Time) ([]model.DailyNetChange, error)
}
