package record

import (
	"time"

	"equity/internal/model"
	"equity/internal/shard"
	"equity/pkg/scanner"

	"github.com/shopspring/decimal"
)

const equityFieldCount = 5

// EquitySnapshot is a validated "timestamp|customerNo|accountNo|currency|balance" line.
type EquitySnapshot struct {
	Timestamp   string
	AsOf        time.Time
	CustomerNo  string
	AccountNo   string
	Currency    string
	Balance     decimal.Decimal
	BalanceText string
}

// ParseEquitySnapshot validates a snapshot line. Interior spaces in the
// account number are dropped before validation.
func ParseEquitySnapshot(line string) (EquitySnapshot, error) {
	f, err := splitFields(line, equityFieldCount)
	if err != nil {
		return EquitySnapshot{}, err
	}

	asOf, err := parseTimestamp(f[0])
	if err != nil {
		return EquitySnapshot{}, err
	}
	customerNo, err := parseCustomerNo(f[1])
	if err != nil {
		return EquitySnapshot{}, err
	}
	accountNo, err := parseAccountNo(scanner.RemoveSpaces(f[2]))
	if err != nil {
		return EquitySnapshot{}, err
	}
	currency, err := parseCurrency(f[3])
	if err != nil {
		return EquitySnapshot{}, err
	}
	balance, err := parseAmount("balance", f[4])
	if err != nil {
		return EquitySnapshot{}, err
	}

	return EquitySnapshot{
		Timestamp:   f[0],
		AsOf:        asOf,
		CustomerNo:  customerNo,
		AccountNo:   accountNo,
		Currency:    currency,
		Balance:     balance,
		BalanceText: f[4],
	}, nil
}

// Shard routes the snapshot by its customer number.
func (e EquitySnapshot) Shard() shard.Shard {
	return shard.MustOf(e.CustomerNo)
}

// AppendCanonical appends the normalized, newline-terminated line to dst.
func (e EquitySnapshot) AppendCanonical(dst []byte) []byte {
	dst = append(dst, e.Timestamp...)
	dst = append(dst, Delimiter)
	dst = append(dst, e.CustomerNo...)
	dst = append(dst, Delimiter)
	dst = append(dst, e.AccountNo...)
	dst = append(dst, Delimiter)
	dst = append(dst, e.Currency...)
	dst = append(dst, Delimiter)
	dst = append(dst, e.BalanceText...)
	return append(dst, '\n')
}

func (e EquitySnapshot) Model() model.BalanceSnapshot {
	return model.BalanceSnapshot{
		CustomerNo: e.CustomerNo,
		AccountNo:  e.AccountNo,
		Currency:   e.Currency,
		Balance:    e.Balance,
		AsOf:       e.AsOf,
	}
}
