// SPDX-License-Identifier: AGPL-3.0-only

package test

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyNoLeak fails t if goroutines started by the test are still running once it finishes.
func VerifyNoLeak(t testing.TB, opts ...goleak.Option) {
	// Run it as a cleanup function so that "last added, first called" ordering execution is guaranteed.
	t.Cleanup(func() {
		goleak.VerifyNone(t, opts...)
	})
}
