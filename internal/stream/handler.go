package stream

import (
	"context"
	"strings"
	"time"

	"equity/internal/obs"
	"equity/internal/record"
	"equity/internal/repository"
	"equity/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Converter turns an amount in currency into CNY.
type Converter interface {
	ToCNY(ctx context.Context, currency string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Handler applies one transaction payload and decides how to settle it.
type Handler struct {
	ledger  repository.Ledger
	rates   Converter
	stats   *obs.Stats
	metrics *obs.Metrics
}

// NewHandler builds a handler. metrics may be nil.
func NewHandler(ledger repository.Ledger, rates Converter, stats *obs.Stats, metrics *obs.Metrics) (*Handler, error) {
	if ledger == nil || rates == nil || stats == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "ledger, rates or stats")
	}
	return &Handler{ledger: ledger, rates: rates, stats: stats, metrics: metrics}, nil
}

// Handle validates payload and applies it.
//
// Malformed payloads are counted as failures and acknowledged. A txId seen
// before is counted as success and acknowledged without touching storage.
// Otherwise the dedup mark, the snapshot upsert, the CNY conversion and the
// aggregate add run in one transaction; any error rolls all of them back
// and asks for redelivery. A replay stops at the dedup mark, so it never
// depends on the rate source.
func (h *Handler) Handle(ctx context.Context, payload string) Decision {
	start := time.Now()

	if strings.TrimSpace(payload) == "" {
		logs.Warnf("invalid msg: %q | reason=%v", payload, exception.ErrEmptyPayload)
		h.settle(obs.OutcomeMalformed, start)
		return DecisionAck
	}

	tx, err := record.ParseTransaction(payload)
	if err != nil {
		logs.Warnf("invalid msg: %s | reason=%v", payload, err)
		h.settle(obs.OutcomeMalformed, start)
		return DecisionAck
	}

	duplicate := false
	err = h.ledger.WithinTx(ctx, func(db repository.Tx) error {
		inserted, err := db.MarkProcessed(ctx, tx.TxID)
		if err != nil {
			return err
		}
		if !inserted {
			duplicate = true
			return nil
		}

		s := tx.Shard()
		if _, err := db.UpsertSnapshotIfNewer(ctx, s, tx.Snapshot()); err != nil {
			return err
		}

		signed := tx.SignedAmount()
		if signed.IsZero() {
			return nil
		}
		delta, err := h.rates.ToCNY(ctx, tx.Currency, signed)
		if err != nil {
			return errors.Wrapf(err, "convert %s", tx.Currency)
		}
		if delta.IsZero() {
			return nil
		}
		return db.AddDailyNetChange(ctx, s, tx.YMD(), tx.CustomerNo, delta)
	})
	if err != nil {
		logs.Errorf("consume error, msg=%s, err: %+v", payload, err)
		h.settle(obs.OutcomeRedeliver, start)
		return DecisionRedeliver
	}

	if duplicate {
		logs.Warnf("duplicate transaction, txId: %s", tx.TxID)
		h.settle(obs.OutcomeDuplicate, start)
		return DecisionAck
	}

	h.settle(obs.OutcomeAccepted, start)
	return DecisionAck
}

func (h *Handler) settle(o obs.Outcome, start time.Time) {
	switch o {
	case obs.OutcomeAccepted, obs.OutcomeDuplicate:
		h.stats.IncOK()
	default:
		h.stats.IncFail()
	}
	h.metrics.ObserveOutcome(o, time.Since(start))
}
