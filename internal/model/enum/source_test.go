package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource(t *testing.T) {
	testCases := []struct {
		source    Source
		name      string
		available bool
	}{
		{source: SourceEquity, name: "equity", available: true},
		{source: SourceRelation, name: "relation", available: true},
		{source: SourceStream, name: "mq", available: true},
		{source: _source_beg, name: "", available: false},
		{source: _source_end, name: "", available: false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.name, tc.source.String())
		assert.Equal(t, tc.available, tc.source.IsAvailable())
	}
}
