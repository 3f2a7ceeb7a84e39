package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CNY is the base currency every aggregate is converted into.
const CNY = "CNY"

// TimestampLayout is the wall-clock layout shared by every line format.
const TimestampLayout = "2006-01-02 15:04:05"

// YMDLayout is the day key of DailyNetChange.
const YMDLayout = "20060102"

// BalanceSnapshot is the latest known balance of a (customer, account, currency).
// A stored row is replaced only by an update whose AsOf is strictly newer.
type BalanceSnapshot struct {
	CustomerNo string          `gorm:"column:customer_no;primaryKey"`
	AccountNo  string          `gorm:"column:account_no;primaryKey"`
	Currency   string          `gorm:"column:ccy;primaryKey"`
	Balance    decimal.Decimal `gorm:"column:balance;type:numeric(21,2)"`
	AsOf       time.Time       `gorm:"column:biz_dt"`
}

// Newer reports whether s should replace stored.
func (s BalanceSnapshot) Newer(stored BalanceSnapshot) bool {
	return s.AsOf.After(stored.AsOf)
}

// SnapshotKey identifies a BalanceSnapshot row inside its shard.
type SnapshotKey struct {
	CustomerNo string
	AccountNo  string
	Currency   string
}

func (s BalanceSnapshot) Key() SnapshotKey {
	return SnapshotKey{CustomerNo: s.CustomerNo, AccountNo: s.AccountNo, Currency: s.Currency}
}

// DailyNetChange accumulates signed CNY deltas for a customer on one day.
// AmountCNY keeps full precision; use Exposed when reading it out.
type DailyNetChange struct {
	YMD        string          `gorm:"column:ymd;primaryKey"`
	CustomerNo string          `gorm:"column:customer_no;primaryKey"`
	AmountCNY  decimal.Decimal `gorm:"column:amount_cny;type:numeric"`
}

// Exposed returns the amount truncated to 2 decimal places.
func (d DailyNetChange) Exposed() decimal.Decimal {
	return Truncate2(d.AmountCNY)
}

// Truncate2 drops everything past the second decimal place, rounding toward zero.
func Truncate2(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(2)
}

// FxRate is a currency to CNY conversion rate.
type FxRate struct {
	Currency string          `gorm:"column:ccy;primaryKey"`
	Rate     decimal.Decimal `gorm:"column:rate;type:numeric"`
}

// Relation binds a customer to a customer manager.
type Relation struct {
	ManagerCode string `gorm:"column:csmgr_refno"`
	CustomerNo  string `gorm:"column:customer_no"`
}

// ProcessedTransaction is a dedup entry: a txId that was already accepted.
type ProcessedTransaction struct {
	TxID string `gorm:"column:tx_id;primaryKey"`
}

// YMD formats t as the aggregate day key.
func YMD(t time.Time) string {
	return t.Format(YMDLayout)
}
