package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/stakeledger/pkg/logger"
)

// TestParseLevel tests level parsing with the info fallback
func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("it parses "+tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, logger.ParseLevel(tt.in))
		})
	}
}

// TestNewFromConfig tests handler selection and record decoration
func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("it writes json records tagged with the service", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var buf bytes.Buffer
		log := logger.NewFromConfig(logger.Config{LogLevel: "info", Service: "stakeledger", Output: &buf})

		// Act
		log.Info("Ledger restored", slog.Int("validators", 3))

		// Assert
		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "stakeledger", record["service"])
		assert.Equal(t, "Ledger restored", record["msg"])
		assert.InDelta(t, 3, record["validators"], 0)
		assert.Regexp(t, `^\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}$`, record["time"])
	})

	t.Run("it drops records below the configured level", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var buf bytes.Buffer
		log := logger.NewFromConfig(logger.Config{LogLevel: "warn", Output: &buf})

		// Act
		log.Info("Checkpoint round completed")

		// Assert
		assert.Zero(t, buf.Len())
	})

	t.Run("it writes text records when human friendly", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var buf bytes.Buffer
		log := logger.NewFromConfig(logger.Config{LogHumanFriendly: true, Output: &buf})

		// Act
		log.Info("Server started", slog.String("addr", "localhost:8080"))

		// Assert
		assert.Contains(t, buf.String(), `msg="Server started"`)
		assert.Contains(t, buf.String(), "addr=localhost:8080")
		assert.NotContains(t, buf.String(), "service=")
	})
}
