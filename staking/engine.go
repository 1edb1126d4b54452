package staking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/screwyprof/stakeledger/pkg/clock"
)

const positionTreeDegree = 32

// Option configures the Engine
// ------------------------------------------------
type Option func(*Engine)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithObserver registers a callback for committed events
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observe = o }
}

// Engine is the delegated-stake accounting engine. It owns the validator registry
// and the delegation ledger; all public operations are safe for concurrent use.
//
// Locking order: Engine.mu, validatorState.barrier, positionState.mu, then
// validatorState.mu or validatorState.treeMu.
// -----------------------------------------------------------------
type Engine struct {
	store    Store
	payout   Payout
	emission EmissionSchedule
	clock    Clock
	observe  Observer

	mu          sync.RWMutex
	validators  map[ValidatorID]*validatorState
	registering map[ValidatorID]struct{} // ids whose registration is being persisted
}

// NewEngine constructs an empty Engine with its collaborators and options.
// Use Restore to load persisted state before serving requests.
func NewEngine(store Store, payout Payout, emission EmissionSchedule, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		payout:      payout,
		emission:    emission,
		clock:       clock.SystemClock{},
		observe:     func(Event) {},
		validators:  make(map[ValidatorID]*validatorState),
		registering: make(map[ValidatorID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore replaces the in-memory state with the store's snapshot after checking
// the conservation and checkpoint invariants.
func (e *Engine) Restore(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	states := make(map[ValidatorID]*validatorState, len(snap.Validators))
	for _, v := range snap.Validators {
		if _, dup := states[v.ID]; dup {
			return fmt.Errorf("%w: duplicate validator %s", ErrCorruptState, v.ID)
		}
		states[v.ID] = newValidatorState(v)
	}

	sums := make(map[ValidatorID]uint64, len(states))
	for _, p := range snap.Positions {
		vs, ok := states[p.Validator]
		if !ok {
			return fmt.Errorf("%w: position %s/%s references unknown validator", ErrCorruptState, p.Delegator, p.Validator)
		}
		if p.LastClaimed > p.LastAccrued || p.LastAccrued > vs.v.Checkpoint {
			return fmt.Errorf("%w: position %s/%s is ahead of the validator checkpoint", ErrCorruptState, p.Delegator, p.Validator)
		}
		sum, ok := addChecked(sums[p.Validator], p.Staked)
		if !ok {
			return fmt.Errorf("%w: stake of validator %s overflows", ErrCorruptState, p.Validator)
		}
		sums[p.Validator] = sum

		ps := &positionState{delegator: p.Delegator, p: p, exists: true}
		if _, replaced := vs.positions.ReplaceOrInsert(ps); replaced {
			return fmt.Errorf("%w: duplicate position %s/%s", ErrCorruptState, p.Delegator, p.Validator)
		}
	}

	for id, vs := range states {
		if vs.v.TotalStake != sums[id] {
			return fmt.Errorf("%w: validator %s total stake %d does not match positions %d",
				ErrCorruptState, id, vs.v.TotalStake, sums[id])
		}
	}

	e.mu.Lock()
	e.validators = states
	e.mu.Unlock()
	return nil
}

// GetValidator returns a copy of the validator
func (e *Engine) GetValidator(ctx context.Context, id ValidatorID) (Validator, error) {
	vs, err := e.lookup(id)
	if err != nil {
		return Validator{}, err
	}
	return vs.snapshot(), nil
}

// ListValidators returns every registered validator ordered by id
func (e *Engine) ListValidators(ctx context.Context) []Validator {
	e.mu.RLock()
	states := make([]*validatorState, 0, len(e.validators))
	for _, vs := range e.validators {
		states = append(states, vs)
	}
	e.mu.RUnlock()

	validators := make([]Validator, len(states))
	for i, vs := range states {
		validators[i] = vs.snapshot()
	}
	sort.Slice(validators, func(i, j int) bool { return validators[i].ID < validators[j].ID })
	return validators
}

// GetPosition returns a copy of the position of delegator under validator
func (e *Engine) GetPosition(ctx context.Context, delegator DelegatorID, validator ValidatorID) (Position, error) {
	vs, err := e.lookup(validator)
	if err != nil {
		return Position{}, err
	}

	vs.barrier.RLock()
	defer vs.barrier.RUnlock()

	ps, ok := vs.acquire(delegator, false)
	if !ok {
		return Position{}, positionNotFound(delegator, validator)
	}
	defer vs.release(ps)

	return ps.p, nil
}

// ListPositions returns up to limit positions of a validator ordered by delegator,
// skipping the first offset ones, and whether more positions follow.
func (e *Engine) ListPositions(ctx context.Context, validator ValidatorID, offset, limit uint64) ([]Position, bool, error) {
	vs, err := e.lookup(validator)
	if err != nil {
		return nil, false, err
	}

	// the write side waits for in-flight position operations to finish
	vs.barrier.Lock()
	defer vs.barrier.Unlock()

	var (
		positions []Position
		skipped   uint64
		hasMore   bool
	)
	vs.treeMu.Lock()
	vs.positions.Ascend(func(ps *positionState) bool {
		if !ps.exists {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		if uint64(len(positions)) == limit {
			hasMore = true
			return false
		}
		positions = append(positions, ps.p)
		return true
	})
	vs.treeMu.Unlock()

	return positions, hasMore, nil
}

func (e *Engine) lookup(id ValidatorID) (*validatorState, error) {
	e.mu.RLock()
	vs, ok := e.validators[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: validator %s", ErrNotFound, id)
	}
	return vs, nil
}

func (e *Engine) commit(ctx context.Context, cs Changeset) error {
	if err := e.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return nil
}

func positionNotFound(delegator DelegatorID, validator ValidatorID) error {
	return fmt.Errorf("%w: position %s/%s", ErrNotFound, delegator, validator)
}

// validatorState holds one validator and its positions
type validatorState struct {
	// barrier is held for reading by position operations and for writing by
	// accrual passes, so the two never interleave
	barrier sync.RWMutex

	mu       sync.Mutex
	v        Validator
	reserved uint64 // credits persisted but not yet applied

	treeMu    sync.Mutex
	positions *btree.BTreeG[*positionState]
}

func newValidatorState(v Validator) *validatorState {
	return &validatorState{
		v:         v,
		positions: btree.NewG(positionTreeDegree, (*positionState).less),
	}
}

func (vs *validatorState) snapshot() Validator {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.v
}

// acquire locks the position of delegator, creating an empty placeholder when
// create is set. The caller must hold the barrier and must call release.
func (vs *validatorState) acquire(delegator DelegatorID, create bool) (*positionState, bool) {
	probe := &positionState{delegator: delegator}
	for {
		vs.treeMu.Lock()
		ps, ok := vs.positions.Get(probe)
		if !ok {
			if !create {
				vs.treeMu.Unlock()
				return nil, false
			}
			ps = &positionState{delegator: delegator}
			vs.positions.ReplaceOrInsert(ps)
		}
		vs.treeMu.Unlock()

		ps.mu.Lock()
		if ps.detached {
			// removed while we were waiting; look again
			ps.mu.Unlock()
			continue
		}
		if !ps.exists && !create {
			vs.release(ps)
			return nil, false
		}
		return ps, true
	}
}

// release unlocks a position and drops it from the tree when it no longer exists
func (vs *validatorState) release(ps *positionState) {
	if !ps.exists {
		vs.treeMu.Lock()
		if cur, ok := vs.positions.Get(ps); ok && cur == ps {
			vs.positions.Delete(ps)
		}
		vs.treeMu.Unlock()
		ps.detached = true
	}
	ps.mu.Unlock()
}

// positionState is a position with its single-writer lock
type positionState struct {
	mu        sync.Mutex
	delegator DelegatorID // immutable tree key
	p         Position
	exists    bool
	detached  bool
}

func (ps *positionState) less(other *positionState) bool {
	return ps.delegator < other.delegator
}
