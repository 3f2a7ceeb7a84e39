// Package shard maps customers onto the 16 storage partitions.
//
// Every ingestion and query path routes through Of, so a customer's snapshot
// rows and daily aggregate rows always land in tables with the same suffix.
package shard

import (
	"strconv"

	"equity/pkg/exception"
	"equity/pkg/scanner"

	"github.com/yanun0323/errors"
)

const (
	// Count is the fixed number of partitions.
	Count = 16

	// CustomerNoWidth is the normalized customer number width.
	CustomerNoWidth = 10
)

// Shard is a 1-based partition number in [1, Count].
type Shard uint8

// Of returns the shard for a customer number of up to 10 digits.
func Of(customerNo string) (Shard, error) {
	if len(customerNo) > CustomerNoWidth || !scanner.AllDigits(customerNo) {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "customer no %q", customerNo)
	}
	n, err := strconv.ParseUint(NormalizeCustomerNo(customerNo), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "customer no %q", customerNo)
	}
	return Shard(n%Count) + 1, nil
}

// MustOf is Of for customer numbers that were already validated.
func MustOf(customerNo string) Shard {
	s, err := Of(customerNo)
	if err != nil {
		panic(err)
	}
	return s
}

// NormalizeCustomerNo left-pads the customer number with zeros to width 10.
func NormalizeCustomerNo(customerNo string) string {
	return scanner.LeftPad(customerNo, CustomerNoWidth)
}

// All lists every shard in ascending order.
func All() []Shard {
	out := make([]Shard, Count)
	for i := range out {
		out[i] = Shard(i + 1)
	}
	return out
}

// FromIndex converts a 0-based index into a Shard.
func FromIndex(i int) Shard {
	return Shard(i + 1)
}

// Index is the 0-based position of the shard.
func (s Shard) Index() int {
	return int(s) - 1
}

func (s Shard) Valid() bool {
	return s >= 1 && s <= Count
}

// Suffix renders the shard as the 2-digit table suffix "01".."16".
func (s Shard) Suffix() string {
	if s < 10 {
		return "0" + strconv.Itoa(int(s))
	}
	return strconv.Itoa(int(s))
}

func (s Shard) String() string {
	return s.Suffix()
}

// Table joins a table prefix with the shard suffix, e.g. "agg_cust_daily_" -> "agg_cust_daily_03".
func (s Shard) Table(prefix string) string {
	return prefix + s.Suffix()
}
