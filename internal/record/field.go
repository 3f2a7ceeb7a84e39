// Package record validates and normalizes the three pipe-delimited line
// formats: equity snapshot, transaction and manager relation.
//
// Any field violation rejects the whole line with a *FieldError that
// unwraps to exception.ErrMalformedRecord.
package record

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"equity/internal/model"
	"equity/internal/shard"
	"equity/pkg/exception"
	"equity/pkg/scanner"

	"github.com/shopspring/decimal"
)

const (
	Delimiter = '|'

	// fullWidthDelimiter is accepted in relation files.
	fullWidthDelimiter = "｜"

	maxAccountNoLen   = 18
	maxTxIDLen        = 32
	maxManagerCodeLen = 7
	currencyLen       = 3
)

var amountPattern = regexp.MustCompile(`^-?\d{1,18}(\.\d{1,2})?$`)

// FieldError reports which field rejected a line.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return exception.ErrMalformedRecord.Error() + ": " + e.Field
	}
	return exception.ErrMalformedRecord.Error() + ": " + e.Field + ": " + e.Reason
}

func (e *FieldError) Unwrap() error {
	return exception.ErrMalformedRecord
}

func malformed(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

func splitFields(line string, want int) ([]string, error) {
	fields := strings.Split(line, string(Delimiter))
	if len(fields) != want {
		return nil, malformed("fields", "want "+strconv.Itoa(want))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if len(s) != len(model.TimestampLayout) {
		return time.Time{}, malformed("timestamp", "length")
	}
	t, err := time.ParseInLocation(model.TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, malformed("timestamp", "format")
	}
	return t, nil
}

func parseCustomerNo(s string) (string, error) {
	if len(s) > shard.CustomerNoWidth || !scanner.AllDigits(s) {
		return "", malformed("customerNo", "")
	}
	return shard.NormalizeCustomerNo(s), nil
}

func parseAccountNo(s string) (string, error) {
	if len(s) > maxAccountNoLen || !scanner.AllDigits(s) {
		return "", malformed("accountNo", "")
	}
	return s, nil
}

func parseCurrency(s string) (string, error) {
	if len(s) != currencyLen || !scanner.AllAlpha(s) {
		return "", malformed("currency", "")
	}
	return strings.ToUpper(s), nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Decimal{}, malformed(field, "format")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, malformed(field, "parse")
	}
	return d, nil
}
