package repository

import (
	"context"
	"fmt"
	"time"

	"equity/internal/model"
	"equity/internal/shard"
	"equity/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// Postgres implements Ledger, Reader and the rate source on gorm.
type Postgres struct {
	db     *gorm.DB
	tables Tables
}

func NewPostgres(db *gorm.DB, tables Tables) (*Postgres, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "gorm db")
	}
	return &Postgres{db: db, tables: tables.withDefaults()}, nil
}

func (p *Postgres) Tables() Tables {
	return p.tables
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return p.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&pgTx{db: db, tables: p.tables})
	})
}

type pgTx struct {
	db     *gorm.DB
	tables Tables
}

func (t *pgTx) MarkProcessed(ctx context.Context, txID string) (bool, error) {
	res := t.db.WithContext(ctx).Exec(
		fmt.Sprintf(`INSERT INTO %s (tx_id) VALUES (?) ON CONFLICT (tx_id) DO NOTHING`, t.tables.Inbox),
		txID,
	)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "mark processed %s", txID)
	}
	return res.RowsAffected == 1, nil
}

func (t *pgTx) UpsertSnapshotIfNewer(ctx context.Context, s shard.Shard, snap model.BalanceSnapshot) (bool, error) {
	table := t.tables.Snapshot(s)
	res := t.db.WithContext(ctx).Exec(
		fmt.Sprintf(`INSERT INTO %[1]s (biz_dt, customer_no, account_no, ccy, balance)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (customer_no, account_no, ccy) DO UPDATE
SET biz_dt = EXCLUDED.biz_dt, balance = EXCLUDED.balance
WHERE EXCLUDED.biz_dt > %[1]s.biz_dt`, table),
		snap.AsOf, snap.CustomerNo, snap.AccountNo, snap.Currency, snap.Balance,
	)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "upsert snapshot %s", table)
	}
	return res.RowsAffected == 1, nil
}

func (t *pgTx) AddDailyNetChange(ctx context.Context, s shard.Shard, ymd, customerNo string, delta decimal.Decimal) error {
	table := t.tables.Aggregate(s)
	res := t.db.WithContext(ctx).Exec(
		fmt.Sprintf(`INSERT INTO %[1]s (ymd, customer_no, amount_cny)
VALUES (?, ?, ?)
ON CONFLICT (ymd, customer_no) DO UPDATE
SET amount_cny = %[1]s.amount_cny + EXCLUDED.amount_cny`, table),
		ymd, customerNo, delta,
	)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "add daily net change %s", table)
	}
	return nil
}

// ListRates returns the whole rate table.
func (p *Postgres) ListRates(ctx context.Context) ([]model.FxRate, error) {
	var rows []model.FxRate
	if err := p.db.WithContext(ctx).Table(p.tables.Rates).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list rates")
	}
	return rows, nil
}

// FindRate looks up a single currency, case-insensitively.
func (p *Postgres) FindRate(ctx context.Context, currency string) (decimal.Decimal, bool, error) {
	var rows []model.FxRate
	err := p.db.WithContext(ctx).
		Table(p.tables.Rates).
		Where("UPPER(ccy) = UPPER(?)", currency).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "find rate %s", currency)
	}
	if len(rows) == 0 {
		return decimal.Zero, false, nil
	}
	return rows[0].Rate, true, nil
}

const rateJoin = `CASE WHEN e.ccy = 'CNY' THEN 1 ELSE COALESCE(r.rate, 0) END`

func (p *Postgres) Holdings(ctx context.Context, s shard.Shard, customerNo string) ([]Holding, error) {
	type row struct {
		model.BalanceSnapshot
		Rate decimal.Decimal `gorm:"column:rate"`
	}

	var rows []row
	err := p.db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT e.biz_dt, e.customer_no, e.account_no, e.ccy, e.balance, %s AS rate
FROM %s e LEFT JOIN %s r ON UPPER(r.ccy) = e.ccy
WHERE e.customer_no = ?
ORDER BY e.account_no, e.ccy`, rateJoin, p.tables.Snapshot(s), p.tables.Rates),
		customerNo,
	).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "holdings %s", customerNo)
	}

	out := make([]Holding, 0, len(rows))
	for _, r := range rows {
		out = append(out, Holding{BalanceSnapshot: r.BalanceSnapshot, Rate: r.Rate})
	}
	return out, nil
}

func (p *Postgres) SumRange(ctx context.Context, s shard.Shard, from, to string) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := p.db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT COALESCE(SUM(e.balance * %s), 0) AS total
FROM %s e LEFT JOIN %s r ON UPPER(r.ccy) = e.ccy
WHERE e.customer_no BETWEEN ? AND ?`, rateJoin, p.tables.Snapshot(s), p.tables.Rates),
		from, to,
	).Scan(&result).Error
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "sum range %s", s)
	}
	return result.Total, nil
}

func (p *Postgres) CustomersOf(ctx context.Context, managerCode string) ([]string, error) {
	var out []string
	err := p.db.WithContext(ctx).
		Table(p.tables.Relation).
		Distinct("customer_no").
		Where("csmgr_refno = ?", managerCode).
		Order("customer_no").
		Pluck("customer_no", &out).Error
	if err != nil {
		return nil, errors.Wrapf(err, "customers of %s", managerCode)
	}
	return out, nil
}

func (p *Postgres) DailyNetChanges(ctx context.Context, s shard.Shard, customerNos []string, from, to time.Time) ([]model.DailyNetChange, error) {
	if len(customerNos) == 0 {
		return nil, nil
	}
	db := p.db.WithContext(ctx).
		Table(p.tables.Aggregate(s)).
		Where("customer_no IN ?", customerNos)
	if !from.IsZero() {
		db = db.Where("ymd >= ?", model.YMD(from))
	}
	if !to.IsZero() {
		db = db.Where("ymd <= ?", model.YMD(to))
	}

	var rows []model.DailyNetChange
	err := db.Order("ymd, customer_no").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "daily net changes %s", s)
	}
	return rows, nil
}
