// Package exception holds the sentinel errors shared across packages.
//
// Sentinels are created with github.com/yanun0323/errors and wrapped with
// its Wrap and Wrapf. A wrapped sentinel is only visible to that library's
// matcher, so callers classify errors with Is below instead of the
// standard library's errors.Is.
package exception

import "github.com/yanun0323/errors"

// Is reports whether err carries target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
