package exception

import "github.com/yanun0323/errors"

// Record errors
var (
	// ErrMalformedRecord is returned for any line that fails field validation.
	// It is terminal: the record is quarantined and never retried.
	ErrMalformedRecord = errors.New("record: malformed")

	ErrFieldCount = errors.New("record: field count mismatch")
)
