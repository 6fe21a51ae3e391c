//go:build !hip

// Package hip implements transpose.Driver on the ROCm HIP runtime.
package hip

import (
	"errors"

	"github.com/samcharles93/convmap/internal/transpose"
)

var errUnavailable = errors.New("hip driver is not available in this build (rebuild with -tags hip)")

// Open always fails without the hip build tag.
func Open(int) (transpose.Driver, error) {
	return nil, errUnavailable
}
