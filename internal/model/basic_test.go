package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTruncate2(t *testing.T) {
	testCases := []struct {
		desc  string
		input string
		want  string
	}{
		{"positive", "687.9612", "687.96"},
		{"no rounding up", "1.999", "1.99"},
		{"negative toward zero", "-1.999", "-1.99"},
		{"already short", "70", "70"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := Truncate2(decimal.RequireFromString(tc.input))
			assert.Truef(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestBalanceSnapshotNewer(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	old := BalanceSnapshot{AsOf: t1}
	same := BalanceSnapshot{AsOf: t1}
	newer := BalanceSnapshot{AsOf: t1.Add(time.Second)}

	assert.True(t, newer.Newer(old))
	assert.False(t, old.Newer(newer))
	assert.False(t, same.Newer(old), "equal timestamps must not replace")
}

func TestYMD(t *testing.T) {
	assert.Equal(t, "20250601", YMD(time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)))
}
