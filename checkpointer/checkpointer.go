// Package checkpointer is the external scheduler that advances the accrual
// checkpoint of every active validator on a fixed interval.
package checkpointer

import (
	"context"
	"time"

	"github.com/screwyprof/stakeledger/staking"
)

// Default configuration values
const (
	DefaultInterval    = time.Minute
	DefaultConcurrency = 4
)

// Engine advances validator checkpoints
// -------------------------------------
type Engine interface {
	ListValidators(ctx context.Context) []staking.Validator
	AdvanceCheckpoint(ctx context.Context, id staking.ValidatorID) (staking.Accrual, error)
}

// Clock abstracts time for production and testing
// ------------------------------------------------
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// Event represents a scheduler lifecycle event
// --------------------------------------------
type Event any

type SchedulerStarted struct {
	StartedAt   time.Time
	Interval    time.Duration
	Concurrency int
}

type CheckpointAdvanced struct {
	Round   uint64
	Accrual staking.Accrual
}

type AdvanceFailed struct {
	Round     uint64
	Validator staking.ValidatorID
	Err       error
}

type RoundCompleted struct {
	Round    uint64
	Advanced int
	Failed   int
	Skipped  int // inactive validators
	Duration time.Duration
}

type SchedulerShutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
	Rounds uint64
}
