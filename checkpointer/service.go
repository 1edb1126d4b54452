package checkpointer

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/screwyprof/stakeledger/pkg/clock"
	"github.com/screwyprof/stakeledger/staking"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithInterval sets the period length
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithConcurrency bounds the number of validators advanced in parallel
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Service advances every active validator once per interval
// ---------------------------------------------------------
type Service struct {
	engine      Engine
	clock       Clock
	interval    time.Duration
	concurrency int
	events      chan Event
}

// NewService constructs a Service with required dependencies and options
// ---------------------------------------------------------------------
// By default, it uses a real clock, a one minute interval and 4 workers.
func NewService(engine Engine, opts ...Option) *Service {
	s := &Service{
		engine:      engine,
		clock:       clock.SystemClock{},
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		events:      make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduler and returns the events channel and done channel.
//
// Shutdown pattern:
//  1. Cancel context to request shutdown: cancel()
//  2. Service finishes the running round and closes events channel
//  3. Wait for complete shutdown: <-done
//
// Events must be drained (see NewSubscriber) or the scheduler blocks.
func (s *Service) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(s.events)
		defer close(done)
		s.run(ctx)
	}()
	return s.events, done
}

func (s *Service) run(ctx context.Context) {
	s.events <- SchedulerStarted{
		StartedAt:   s.clock.Now(),
		Interval:    s.interval,
		Concurrency: s.concurrency,
	}

	var round uint64
	for {
		select {
		case <-ctx.Done():
			s.events <- SchedulerShutdown{Reason: ctx.Err(), Rounds: round}
			return
		case <-s.clock.After(s.interval):
			round++
			s.events <- s.advanceAll(ctx, round)
		}
	}
}

// advanceAll runs one round. A failing validator does not stop the others;
// every failure is reported as an AdvanceFailed event.
func (s *Service) advanceAll(ctx context.Context, round uint64) RoundCompleted {
	start := s.clock.Now()

	var advanced, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, v := range s.engine.ListValidators(ctx) {
		if !v.Active() {
			skipped.Add(1)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		id := v.ID
		g.Go(func() error {
			accrual, err := s.engine.AdvanceCheckpoint(ctx, id)
			if err != nil {
				failed.Add(1)
				s.events <- AdvanceFailed{Round: round, Validator: id, Err: err}
				return nil
			}
			advanced.Add(1)
			s.events <- CheckpointAdvanced{Round: round, Accrual: accrual}
			return nil
		})
	}
	_ = g.Wait() // workers report through events

	return RoundCompleted{
		Round:    round,
		Advanced: int(advanced.Load()),
		Failed:   int(failed.Load()),
		Skipped:  int(skipped.Load()),
		Duration: s.clock.Now().Sub(start),
	}
}

var _ Engine = (*staking.Engine)(nil)
