package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/screwyprof/stakeledger/pkg/clock"
)

// TestSystemClock tests the wall clock
func TestSystemClock(t *testing.T) {
	t.Parallel()

	t.Run("it reports utc time at database precision", func(t *testing.T) {
		t.Parallel()

		// Act
		now := clock.SystemClock{}.Now()

		// Assert
		assert.Equal(t, time.UTC, now.Location())
		assert.Zero(t, now.Nanosecond()%int(time.Microsecond))
		assert.WithinDuration(t, time.Now(), now, time.Second)
	})

	t.Run("it fires after the duration elapses", func(t *testing.T) {
		t.Parallel()

		// Act
		start := time.Now()
		<-clock.SystemClock{}.After(10 * time.Millisecond)

		// Assert
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})
}
