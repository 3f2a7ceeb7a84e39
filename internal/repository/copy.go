package repository

import (
	"bytes"
	"context"
	"fmt"

	"equity/internal/shard"
	"equity/pkg/exception"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yanun0323/errors"
)

// CopyLoader opens COPY sessions for the bulk loaders. Each session holds
// one pooled connection until Close.
type CopyLoader struct {
	pool   *pgxpool.Pool
	tables Tables
}

func NewCopyLoader(pool *pgxpool.Pool, tables Tables) (*CopyLoader, error) {
	if pool == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "pgx pool")
	}
	return &CopyLoader{pool: pool, tables: tables.withDefaults()}, nil
}

// Equity opens a session into the snapshot table of s.
// Batches are canonical "ts|customer|account|ccy|balance" lines.
func (l *CopyLoader) Equity(ctx context.Context, s shard.Shard) (*CopySession, error) {
	return l.open(ctx, l.tables.Snapshot(s), "biz_dt, customer_no, account_no, ccy, balance")
}

// Relation opens a session into the relation table.
// Batches are canonical "manager|customer" lines.
func (l *CopyLoader) Relation(ctx context.Context) (*CopySession, error) {
	return l.open(ctx, l.tables.Relation, "csmgr_refno, customer_no")
}

func (l *CopyLoader) open(ctx context.Context, table, columns string) (*CopySession, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "acquire conn for %s", table)
	}
	return &CopySession{
		conn:  conn,
		table: table,
		sql:   fmt.Sprintf(`COPY %s (%s) FROM STDIN WITH (FORMAT text, DELIMITER '|')`, table, columns),
	}, nil
}

// CopySession streams pre-rendered batches through COPY FROM STDIN.
type CopySession struct {
	conn  *pgxpool.Conn
	table string
	sql   string
}

// Load copies batch and returns the number of rows the server accepted.
func (c *CopySession) Load(ctx context.Context, batch []byte) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tag, err := c.conn.Conn().PgConn().CopyFrom(ctx, bytes.NewReader(batch), c.sql)
	if err != nil {
		return 0, errors.Wrapf(err, "copy into %s", c.table)
	}
	return tag.RowsAffected(), nil
}

// Close returns the connection to the pool.
func (c *CopySession) Close() error {
	if c.conn != nil {
		c.conn.Release()
		c.conn = nil
	}
	return nil
}
