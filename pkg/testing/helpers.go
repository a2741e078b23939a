// Package testing holds helpers shared by package tests: bounded contexts,
// polling for background work, and a disposable MongoDB replica set.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const pollInterval = 10 * time.Millisecond

// Context is cancelled after timeout or when the test finishes
func Context(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Eventually fails t unless cond holds within timeout
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, timeout, pollInterval, msgAndArgs...)
}
