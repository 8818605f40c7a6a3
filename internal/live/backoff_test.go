package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffSequenceWithoutJitter(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 4*time.Second)
	b.Jitter = 0

	got := make([]time.Duration, 0, 6)
	for i := 0; i < 6; i++ {
		got = append(got, b.Next())
	}
	require.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}, got)
	require.Equal(t, 6, b.Attempts())

	b.Reset()
	require.Equal(t, 500*time.Millisecond, b.Next())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second)

	b.rand = func() float64 { return 0 }
	require.Equal(t, 800*time.Millisecond, b.Next())

	b.Reset()
	b.rand = func() float64 { return 1 }
	require.Equal(t, 1200*time.Millisecond, b.Next())
}

func TestBackoffJitterNeverExceedsMax(t *testing.T) {
	b := NewBackoff(time.Second, time.Second)
	b.rand = func() float64 { return 1 }
	for i := 0; i < 5; i++ {
		require.LessOrEqual(t, b.Next(), time.Second)
	}
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0)
	require.Equal(t, DefaultInitialBackoff, b.Initial)
	require.Equal(t, DefaultMaxBackoff, b.Max)
}
