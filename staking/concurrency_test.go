package staking_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/stakeledger/staking"
)

// TestEngineConcurrency tests the engine under concurrent request streams
func TestEngineConcurrency(t *testing.T) {
	t.Parallel()

	t.Run("it keeps the aggregate in sync with parallel delegations", func(t *testing.T) {
		t.Parallel()

		// Arrange
		engine := newEngine()
		mustRegister(t, engine, validatorV, 500)
		const delegators, rounds = 16, 50

		// Act
		var wg sync.WaitGroup
		for i := 0; i < delegators; i++ {
			wg.Add(1)
			go func(d staking.DelegatorID) {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					_, _ = engine.Delegate(context.Background(), d, validatorV, 10)
					_, _ = engine.Undelegate(context.Background(), d, validatorV, 3)
				}
			}(staking.DelegatorID(fmt.Sprintf("tz1d%02d", i)))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, _ = engine.AdvanceCheckpoint(context.Background(), validatorV)
			}
		}()
		wg.Wait()

		// Assert
		assertTotalStake(t, engine, validatorV, delegators*rounds*7)
		assert.Equal(t, uint64(delegators*rounds*7), stakeSum(t, engine, validatorV))
		assert.Equal(t, uint64(rounds), mustValidator(t, engine, validatorV).Checkpoint)
	})

	t.Run("it serialises operations on the same position", func(t *testing.T) {
		t.Parallel()

		// Arrange
		engine := newEngine()
		mustRegister(t, engine, validatorV, 0)
		mustDelegate(t, engine, delegatorD, validatorV, 1000)
		const workers = 32

		// Act
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = engine.Delegate(context.Background(), delegatorD, validatorV, 5)
			}()
			go func() {
				defer wg.Done()
				_, _ = engine.Undelegate(context.Background(), delegatorD, validatorV, 5)
			}()
		}
		wg.Wait()

		// Assert
		assertPosition(t, engine, delegatorD, validatorV, 1000, 0)
		assertTotalStake(t, engine, validatorV, 1000)
	})

	t.Run("it pays each accrued reward exactly once", func(t *testing.T) {
		t.Parallel()

		// Arrange
		payout := &fakePayout{}
		engine := engineWithPayout(payout)
		mustRegister(t, engine, validatorV, 1000)
		mustDelegate(t, engine, delegatorD, validatorV, 100)
		mustAdvance(t, engine, validatorV)
		const claimers = 32

		// Act
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := engine.ClaimRewards(context.Background(), delegatorD, validatorV); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, staking.ErrNothingToClaim)
				}
			}()
		}
		wg.Wait()

		// Assert
		require.Equal(t, 1, succeeded)
		require.Len(t, payout.paid(), 1)
		assert.Equal(t, uint64(9), payout.paid()[0].Amount)
	})

	t.Run("it never loses a position created while others are removed", func(t *testing.T) {
		t.Parallel()

		// Arrange
		engine := newEngine()
		mustRegister(t, engine, validatorV, 0)
		const rounds = 200

		// Act
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, _ = engine.Delegate(context.Background(), delegatorD, validatorV, 1)
			}
		}()
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, _ = engine.Undelegate(context.Background(), delegatorD, validatorV, 1)
			}
		}()
		wg.Wait()

		// Assert
		assert.Equal(t, stakeSum(t, engine, validatorV), mustValidator(t, engine, validatorV).TotalStake)
	})
}
