//go:build unit

package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     time.Duration
		attempt  int
		expected time.Duration
	}{
		{name: "attempt 0", base: time.Second, attempt: 0, expected: time.Second},
		{name: "attempt 1", base: time.Second, attempt: 1, expected: 2 * time.Second},
		{name: "attempt 3", base: 100 * time.Millisecond, attempt: 3, expected: 800 * time.Millisecond},
		{name: "negative attempt clamps to 0", base: time.Second, attempt: -5, expected: time.Second},
		{name: "zero base", base: 0, attempt: 10, expected: 0},
		{name: "negative base", base: -time.Second, attempt: 2, expected: 0},
		{name: "overflow clamps to max", base: time.Hour, attempt: 62, expected: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestFullJitter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.Equal(t, time.Duration(0), FullJitter(-time.Second))

	for i := 0; i < 100; i++ {
		got := FullJitter(time.Second)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, time.Second)
	}
}

func TestExponentialWithJitter(t *testing.T) {
	t.Parallel()

	for attempt := 0; attempt < 5; attempt++ {
		got := ExponentialWithJitter(100*time.Millisecond, attempt)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, Exponential(100*time.Millisecond, attempt))
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	t.Run("completes", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))
	})

	t.Run("zero duration returns immediately", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, SleepWithContext(ctx, 0))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := SleepWithContext(ctx, time.Minute)
		require.ErrorIs(t, err, context.Canceled)
	})
}
