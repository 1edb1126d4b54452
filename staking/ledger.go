package staking

import (
	"context"
	"fmt"
)

// Delegate adds amount to the position of delegator under validator, opening the
// position when it does not exist yet. New positions start at the validator's
// current checkpoint so they never earn for earlier periods.
func (e *Engine) Delegate(ctx context.Context, delegator DelegatorID, validator ValidatorID, amount uint64) (Position, error) {
	if delegator == "" {
		return Position{}, fmt.Errorf("%w: empty delegator id", ErrInvalidID)
	}
	if amount == 0 {
		return Position{}, fmt.Errorf("%w: delegation must be positive", ErrInvalidAmount)
	}

	vs, err := e.lookup(validator)
	if err != nil {
		return Position{}, err
	}

	vs.barrier.RLock()
	defer vs.barrier.RUnlock()

	v := vs.snapshot()
	if !v.Active() {
		return Position{}, fmt.Errorf("%w: %s is %s", ErrValidatorNotActive, validator, v.Status)
	}

	ps, _ := vs.acquire(delegator, true)
	defer vs.release(ps)

	staged := ps.p
	if !ps.exists {
		staged = Position{
			Delegator:   delegator,
			Validator:   validator,
			LastClaimed: v.Checkpoint,
			LastAccrued: v.Checkpoint,
		}
	}

	// stake added now must not earn for periods that were missed before it
	reward, err := catchUp(v, &staged)
	if err != nil {
		return Position{}, err
	}

	staked, ok := addChecked(staged.Staked, amount)
	if !ok {
		return Position{}, fmt.Errorf("%w: position stake overflows", ErrInvalidAmount)
	}
	staged.Staked = staked

	if err := vs.reserveCredit(amount); err != nil {
		return Position{}, err
	}

	cs := Changeset{
		StakeAdjustments: []StakeAdjustment{{Validator: validator, Credit: amount, Commission: reward.Commission}},
		Positions:        []Position{staged},
	}
	if err := e.commit(ctx, cs); err != nil {
		vs.cancelCredit(amount)
		return Position{}, err
	}

	ps.p, ps.exists = staged, true
	total := vs.creditStake(amount)
	vs.addCommission(reward.Commission)

	e.observe(StakeDelegated{Position: staged, Amount: amount, TotalStake: total, At: e.clock.Now()})
	return staged, nil
}

// Undelegate withdraws amount from the position of delegator under validator.
// Rewards are settled up to the current checkpoint before the stake is reduced.
// The position is removed once both its balances are zero.
func (e *Engine) Undelegate(ctx context.Context, delegator DelegatorID, validator ValidatorID, amount uint64) (Position, error) {
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

	if amount == 0 {
		return Position{}, fmt.Errorf("%w: undelegation must be positive", ErrInvalidAmount)
	}
	if amount > ps.p.Staked {
		return Position{}, fmt.Errorf("%w: staked %d, requested %d", ErrInsufficientStake, ps.p.Staked, amount)
	}

	v := vs.snapshot()
	staged := ps.p
	reward, err := catchUp(v, &staged)
	if err != nil {
		return Position{}, err
	}
	staged.Staked -= amount

	removed := staged.Empty()
	cs := Changeset{
		StakeAdjustments: []StakeAdjustment{{Validator: validator, Debit: amount, Commission: reward.Commission}},
	}
	if removed {
		cs.RemovedPositions = []PositionKey{staged.Key()}
	} else {
		cs.Positions = []Position{staged}
	}
	if err := e.commit(ctx, cs); err != nil {
		return Position{}, err
	}

	total, err := vs.debitStake(amount)
	if err != nil {
		// the store already holds the debit; the aggregate no longer matches
		return Position{}, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	ps.p, ps.exists = staged, !removed
	vs.addCommission(reward.Commission)

	e.observe(StakeUndelegated{Position: staged, Amount: amount, TotalStake: total, Removed: removed, At: e.clock.Now()})
	return staged, nil
}

// catchUp accrues the periods a position missed since its last accrual, at the
// validator's latest rate
func catchUp(v Validator, p *Position) (Reward, error) {
	if p.LastAccrued >= v.Checkpoint {
		return Reward{}, nil
	}

	r, err := ComputeReward(p.Staked, v.LastRate, v.Checkpoint-p.LastAccrued, v.CommissionBps)
	if err != nil {
		return Reward{}, err
	}
	unclaimed, ok := addChecked(p.Unclaimed, r.Net)
	if !ok {
		return Reward{}, fmt.Errorf("%w: unclaimed reward of %s/%s", ErrRewardOverflow, p.Delegator, p.Validator)
	}
	if _, ok := addChecked(v.CommissionEarned, r.Commission); !ok {
		return Reward{}, fmt.Errorf("%w: commission of %s", ErrRewardOverflow, v.ID)
	}

	p.Unclaimed = unclaimed
	p.LastAccrued = v.Checkpoint
	return r, nil
}
