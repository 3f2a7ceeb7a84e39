// Package repositorytest provides an in-process store with the commit and
// rollback semantics of repository.Postgres, for tests of its callers.
package repositorytest

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"equity/internal/model"
	"equity/internal/repository"
	"equity/internal/shard"
	"equity/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

type aggKey struct {
	ymd        string
	customerNo string
}

// Memory implements repository.Ledger, repository.Reader, the rate source
// and COPY sessions in memory. Failures can be injected per operation.
//
// Transactions are serialized by txMu. mu guards the data and is held only
// per operation, so a transaction body may read rates without deadlocking.
type Memory struct {
	txMu sync.Mutex
	mu   sync.Mutex

	snapshots  [shard.Count]map[model.SnapshotKey]model.BalanceSnapshot
	aggregates [shard.Count]map[aggKey]decimal.Decimal
	inbox      map[string]struct{}
	relations  []model.Relation
	rates      map[string]decimal.Decimal
	copied     map[string][]string
	faults     map[string]error
	commits    int
	rollbacks  int
}

// Fault keys accepted by FailNext.
const (
	OpMarkProcessed  = "mark_processed"
	OpUpsertSnapshot = "upsert_snapshot"
	OpAddNetChange   = "add_net_change"
	OpFindRate       = "find_rate"
)

func NewMemory() *Memory {
	m := &Memory{
		inbox:  make(map[string]struct{}),
		rates:  make(map[string]decimal.Decimal),
		copied: make(map[string][]string),
		faults: make(map[string]error),
	}
	for i := range m.snapshots {
		m.snapshots[i] = make(map[model.SnapshotKey]model.BalanceSnapshot)
		m.aggregates[i] = make(map[aggKey]decimal.Decimal)
	}
	return m
}

// FailNext makes the next call of op, or the next COPY into table op, return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = err
}

func (m *Memory) takeFault(op string) error {
	err, ok := m.faults[op]
	if !ok {
		return nil
	}
	delete(m.faults, op)
	return err
}

var (
	_ repository.Ledger = (*Memory)(nil)
	_ repository.Reader = (*Memory)(nil)
)

func (m *Memory) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memTx{m: m}
	err := fn(tx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

type memTx struct {
	m    *Memory
	undo []func()
}

func (t *memTx) MarkProcessed(_ context.Context, txID string) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.takeFault(OpMarkProcessed); err != nil {
		return false, err
	}
	if _, ok := t.m.inbox[txID]; ok {
		return false, nil
	}
	t.m.inbox[txID] = struct{}{}
	t.undo = append(t.undo, func() { delete(t.m.inbox, txID) })
	return true, nil
}

func (t *memTx) UpsertSnapshotIfNewer(_ context.Context, s shard.Shard, snap model.BalanceSnapshot) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.takeFault(OpUpsertSnapshot); err != nil {
		return false, err
	}
	rows := t.m.snapshots[s.Index()]
	key := snap.Key()
	prev, exists := rows[key]
	if exists && !snap.Newer(prev) {
		return false, nil
	}
	rows[key] = snap
	t.undo = append(t.undo, func() {
		if exists {
			rows[key] = prev
		} else {
			delete(rows, key)
		}
	})
	return true, nil
}

func (t *memTx) AddDailyNetChange(_ context.Context, s shard.Shard, ymd, customerNo string, delta decimal.Decimal) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.takeFault(OpAddNetChange); err != nil {
		return err
	}
	rows := t.m.aggregates[s.Index()]
	key := aggKey{ymd: ymd, customerNo: customerNo}
	prev, exists := rows[key]
	rows[key] = prev.Add(delta)
	t.undo = append(t.undo, func() {
		if exists {
			rows[key] = prev
		} else {
			delete(rows, key)
		}
	})
	return nil
}

// SetRate stores a rate given as a decimal string.
func (m *Memory) SetRate(currency, rate string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[strings.ToUpper(currency)] = decimal.RequireFromString(rate)
}

func (m *Memory) ListRates(_ context.Context) ([]model.FxRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.FxRate, 0, len(m.rates))
	for ccy, rate := range m.rates {
		out = append(out, model.FxRate{Currency: ccy, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (m *Memory) FindRate(_ context.Context, currency string) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFault(OpFindRate); err != nil {
		return decimal.Zero, false, err
	}
	rate, ok := m.rates[strings.ToUpper(currency)]
	return rate, ok, nil
}

// Snapshot returns the stored snapshot row for key.
func (m *Memory) Snapshot(s shard.Shard, key model.SnapshotKey) (model.BalanceSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[s.Index()][key]
	return snap, ok
}

// PutSnapshot stores snap unconditionally.
func (m *Memory) PutSnapshot(snap model.BalanceSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[shard.MustOf(snap.CustomerNo).Index()][snap.Key()] = snap
}

// DailyNetChange returns the stored aggregate for (ymd, customerNo).
func (m *Memory) DailyNetChange(s shard.Shard, ymd, customerNo string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.aggregates[s.Index()][aggKey{ymd: ymd, customerNo: customerNo}]
	return v, ok
}

// Processed reports whether txID is in the inbox.
func (m *Memory) Processed(txID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inbox[txID]
	return ok
}

// TxStats returns how many units of work committed and rolled back.
func (m *Memory) TxStats() (commits, rollbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits, m.rollbacks
}

func (m *Memory) AddRelation(managerCode, customerNo string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations = append(m.relations, model.Relation{ManagerCode: managerCode, CustomerNo: customerNo})
}

func (m *Memory) Holdings(_ context.Context, s shard.Shard, customerNo string) ([]repository.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Holding
	for _, snap := range m.snapshots[s.Index()] {
		if snap.CustomerNo != customerNo {
			continue
		}
		out = append(out, repository.Holding{BalanceSnapshot: snap, Rate: m.rateLocked(snap.Currency)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountNo != out[j].AccountNo {
			return out[i].AccountNo < out[j].AccountNo
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}

func (m *Memory) SumRange(_ context.Context, s shard.Shard, from, to string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, snap := range m.snapshots[s.Index()] {
		if snap.CustomerNo < from || snap.CustomerNo > to {
			continue
		}
		total = total.Add(snap.Balance.Mul(m.rateLocked(snap.Currency)))
	}
	return total, nil
}

func (m *Memory) rateLocked(currency string) decimal.Decimal {
	if currency == model.CNY {
		return decimal.NewFromInt(1)
	}
	return m.rates[currency]
}

func (m *Memory) CustomersOf(_ context.Context, managerCode string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, r := range m.relations {
		if r.ManagerCode != managerCode {
			continue
		}
		if _, ok := seen[r.CustomerNo]; ok {
			continue
		}
		seen[r.CustomerNo] = struct{}{}
		out = append(out, r.CustomerNo)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) DailyNetChanges(_ context.Context, s shard.Shard, customerNos []string, from, to time.Time) ([]model.DailyNetChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(customerNos))
	for _, c := range customerNos {
		want[c] = struct{}{}
	}
	var out []model.DailyNetChange
	for key, amount := range m.aggregates[s.Index()] {
		if _, ok := want[key.customerNo]; !ok {
			continue
		}
		if !from.IsZero() && key.ymd < model.YMD(from) {
			continue
		}
		if !to.IsZero() && key.ymd > model.YMD(to) {
			continue
		}
		out = append(out, model.DailyNetChange{YMD: key.ymd, CustomerNo: key.customerNo, AmountCNY: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YMD != out[j].YMD {
			return out[i].YMD < out[j].YMD
		}
		return out[i].CustomerNo < out[j].CustomerNo
	})
	return out, nil
}

// Copy opens an in-memory COPY session into table.
func (m *Memory) Copy(table string) *Session {
	return &Session{m: m, table: table}
}

// Copied returns every line copied into table, in arrival order.
func (m *Memory) Copied(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.copied[table]...)
}

// Session mirrors repository.CopySession against Memory.
type Session struct {
	m      *Memory
	table  string
	closed bool
}

func (c *Session) Load(_ context.Context, batch []byte) (int64, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.closed {
		return 0, errors.Wrapf(exception.ErrTransientStore, "copy into %s after close", c.table)
	}
	if err := c.m.takeFault(c.table); err != nil {
		return 0, err
	}
	var n int64
	for _, line := range bytes.Split(batch, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		c.m.copied[c.table] = append(c.m.copied[c.table], string(line))
		n++
	}
	return n, nil
}

func (c *Session) Close() error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.closed = true
	return nil
}
