package main

import (
	"testing"

	"equity/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRates(t *testing.T) {
	testCases := []struct {
		desc  string
		input string
		want  map[string]string
		err   bool
	}{
		{desc: "empty", input: "", want: map[string]string{}},
		{desc: "pairs", input: "usd=7.12, HKD = 0.91 ,", want: map[string]string{"USD": "7.12", "HKD": "0.91"}},
		{desc: "missing rate", input: "USD", err: true},
		{desc: "bad currency", input: "US=7", err: true},
		{desc: "bad number", input: "USD=abc", err: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := parseRates(tc.input)
			if tc.err {
				require.Error(t, err)
				assert.True(t, exception.Is(err, exception.ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
