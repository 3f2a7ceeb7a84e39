package record

import (
	"time"

	"equity/internal/model"
	"equity/internal/model/enum"
	"equity/internal/shard"
	"equity/pkg/scanner"

	"github.com/shopspring/decimal"
)

const transactionFieldCount = 8

// Transaction is a validated
// "timestamp|txId|customerNo|accountNo|cdFlag|currency|amount|balance" line.
type Transaction struct {
	AsOf       time.Time
	TxID       string
	CustomerNo string
	AccountNo  string
	CDFlag     enum.CDFlag
	Currency   string
	Amount     decimal.Decimal
	Balance    decimal.Decimal
}

// ParseTransaction validates a transaction line, the payload of both the
// stream and the bulk transaction format.
func ParseTransaction(line string) (Transaction, error) {
	f, err := splitFields(line, transactionFieldCount)
	if err != nil {
		return Transaction{}, err
	}

	asOf, err := parseTimestamp(f[0])
	if err != nil {
		return Transaction{}, err
	}
	txID := f[1]
	if len(txID) > maxTxIDLen || !scanner.AllAlnum(txID) {
		return Transaction{}, malformed("txId", "")
	}
	customerNo, err := parseCustomerNo(f[2])
	if err != nil {
		return Transaction{}, err
	}
	accountNo, err := parseAccountNo(f[3])
	if err != nil {
		return Transaction{}, err
	}
	cd, ok := enum.ParseCDFlag(f[4])
	if !ok {
		return Transaction{}, malformed("cdFlag", "")
	}
	currency, err := parseCurrency(f[5])
	if err != nil {
		return Transaction{}, err
	}
	amount, err := parseAmount("amount", f[6])
	if err != nil {
		return Transaction{}, err
	}
	balance, err := parseAmount("balance", f[7])
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		AsOf:       asOf,
		TxID:       txID,
		CustomerNo: customerNo,
		AccountNo:  accountNo,
		CDFlag:     cd,
		Currency:   currency,
		Amount:     amount,
		Balance:    balance,
	}, nil
}

func (t Transaction) Shard() shard.Shard {
	return shard.MustOf(t.CustomerNo)
}

// SignedAmount is +amount for a debit and -amount for a credit.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.CDFlag == enum.CDFlagCredit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// YMD is the aggregate day the transaction contributes to.
func (t Transaction) YMD() string {
	return model.YMD(t.AsOf)
}

// Snapshot is the balance-after state carried by the transaction.
func (t Transaction) Snapshot() model.BalanceSnapshot {
	return model.BalanceSnapshot{
		CustomerNo: t.CustomerNo,
		AccountNo:  t.AccountNo,
		Currency:   t.Currency,
		Balance:    t.Balance,
		AsOf:       t.AsOf,
	}
}
