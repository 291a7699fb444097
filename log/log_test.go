//go:build unit

package log

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{input: "debug", expected: LevelDebug},
		{input: "DEBUG", expected: LevelDebug},
		{input: "info", expected: LevelInfo},
		{input: "warn", expected: LevelWarn},
		{input: "warning", expected: LevelWarn},
		{input: "error", expected: LevelError},
		{input: "verbose", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")

	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 7}, Int("n", 7))
	assert.Equal(t, Field{Key: "b", Value: true}, Bool("b", true))
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
	assert.Equal(t, Field{Key: "a", Value: 1.5}, Any("a", 1.5))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	assert.False(t, logger.Enabled(LevelError))
	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.NoError(t, logger.Sync(context.Background()))

	// Must not panic.
	logger.Log(context.Background(), LevelInfo, "dropped")
}

func TestNewZap(t *testing.T) {
	t.Parallel()

	t.Run("invalid environment", func(t *testing.T) {
		t.Parallel()

		_, err := NewZap(ZapConfig{Environment: "qa"})
		require.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()

		_, err := NewZap(ZapConfig{Environment: EnvironmentLocal, Level: "loud"})
		require.Error(t, err)
	})

	t.Run("level gating", func(t *testing.T) {
		t.Parallel()

		logger, err := NewZap(ZapConfig{Environment: EnvironmentLocal, Level: "warn"})
		require.NoError(t, err)

		assert.True(t, logger.Enabled(LevelError))
		assert.True(t, logger.Enabled(LevelWarn))
		assert.False(t, logger.Enabled(LevelInfo))
		assert.False(t, logger.Enabled(LevelDebug))
	})
}
