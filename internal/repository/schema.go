package repository

import (
	"context"
	"fmt"

	"equity/internal/shard"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// Statements returns the idempotent DDL creating every table and index.
func (t Tables) Statements() []string {
	t = t.withDefaults()
	stmts := make([]string, 0, 3+2*shard.Count)
	for _, s := range shard.All() {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	biz_dt      TIMESTAMP      NOT NULL,
	customer_no VARCHAR(10)    NOT NULL,
	account_no  VARCHAR(18)    NOT NULL,
	ccy         CHAR(3)        NOT NULL,
	balance     NUMERIC(21, 2) NOT NULL,
	PRIMARY KEY (customer_no, account_no, ccy)
)`, t.Snapshot(s)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ymd         CHAR(8)     NOT NULL,
	customer_no VARCHAR(10) NOT NULL,
	amount_cny  NUMERIC     NOT NULL DEFAULT 0,
	PRIMARY KEY (ymd, customer_no)
)`, t.Aggregate(s)),
		)
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	csmgr_refno VARCHAR(7)  NOT NULL,
	customer_no VARCHAR(10) NOT NULL
)`, t.Relation),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_csmgr_idx ON %[1]s (csmgr_refno)`, t.Relation),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	tx_id      VARCHAR(32) PRIMARY KEY,
	created_at TIMESTAMP   NOT NULL DEFAULT NOW()
)`, t.Inbox),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ccy  CHAR(3) PRIMARY KEY,
	rate NUMERIC NOT NULL
)`, t.Rates),
	)
	return stmts
}

// Migrate applies Statements in a single transaction.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		for _, stmt := range p.tables.Statements() {
			if err := db.Exec(stmt).Error; err != nil {
				return errors.Wrap(err, "migrate")
			}
		}
		return nil
	})
}

// SeedRates upserts rates, used by the migrate tool to bootstrap base_cur.
func (p *Postgres) SeedRates(ctx context.Context, rates map[string]string) error {
	if len(rates) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		for ccy, rate := range rates {
			err := db.Exec(
				fmt.Sprintf(`INSERT INTO %s (ccy, rate) VALUES (UPPER(?), ?::numeric)
ON CONFLICT (ccy) DO UPDATE SET rate = EXCLUDED.rate`, p.tables.Rates),
				ccy, rate,
			).Error
			if err != nil {
				return errors.Wrapf(err, "seed rate %s", ccy)
			}
		}
		return nil
	})
}
