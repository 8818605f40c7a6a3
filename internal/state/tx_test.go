package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetryRetriesBusyErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	busy := errors.New("database is busy")
	err := withRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return busy
	})
	require.ErrorIs(t, err, busy)
	require.Equal(t, 2, calls)
}

func TestWithRetryReturnsOtherErrorsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return errors.New("no such table")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, 3, time.Millisecond, func() error {
		t.Fatal("fn must not run after cancel")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
