package staking

import (
	"context"
	"fmt"
	"math"
)

// AdvanceCheckpoint closes the next accrual period of a validator and credits every
// position under it with its net reward for that period. Positions are locked out
// for the duration of the pass. LastClaimed is left untouched; only claims move it.
func (e *Engine) AdvanceCheckpoint(ctx context.Context, id ValidatorID) (Accrual, error) {
	vs, err := e.lookup(id)
	if err != nil {
		return Accrual{}, err
	}

	vs.barrier.Lock()
	defer vs.barrier.Unlock()

	v := vs.snapshot()
	if v.Checkpoint == math.MaxUint64 {
		return Accrual{}, fmt.Errorf("%w: checkpoint of %s", ErrRewardOverflow, id)
	}
	next := v.Checkpoint + 1

	rate, err := e.emission.PerPeriodRate(ctx, id, next)
	if err != nil {
		return Accrual{}, fmt.Errorf("%w: %s at checkpoint %d: %w", ErrEmissionUnavailable, id, next, err)
	}

	// position operations hold the read side of the barrier, so only committed
	// positions are left in the tree
	var states []*positionState
	vs.treeMu.Lock()
	vs.positions.Ascend(func(ps *positionState) bool {
		if ps.exists {
			states = append(states, ps)
		}
		return true
	})
	vs.treeMu.Unlock()

	acc := Accrual{Validator: id, Checkpoint: next, Rate: rate, Positions: len(states)}
	positions := make([]Position, len(states))
	for i, ps := range states {
		p := ps.p

		missed, err := catchUp(v, &p)
		if err != nil {
			return Accrual{}, err
		}
		r, err := ComputeReward(p.Staked, rate, 1, v.CommissionBps)
		if err != nil {
			return Accrual{}, err
		}

		unclaimed, ok := addChecked(p.Unclaimed, r.Net)
		if !ok {
			return Accrual{}, fmt.Errorf("%w: unclaimed reward of %s/%s", ErrRewardOverflow, p.Delegator, id)
		}
		p.Unclaimed = unclaimed
		p.LastAccrued = next
		positions[i] = p

		if err := acc.add(missed); err != nil {
			return Accrual{}, err
		}
		if err := acc.add(r); err != nil {
			return Accrual{}, err
		}
	}

	earned, ok := addChecked(v.CommissionEarned, acc.Commission)
	if !ok {
		return Accrual{}, fmt.Errorf("%w: commission of %s", ErrRewardOverflow, id)
	}

	staged := v
	staged.Checkpoint = next
	staged.LastRate = rate
	staged.CommissionEarned = earned

	now := e.clock.Now()
	cs := Changeset{
		Validators:       []Validator{staged},
		StakeAdjustments: []StakeAdjustment{{Validator: id, Commission: acc.Commission}},
		Positions:        positions,
		Periods: []PeriodRecord{{
			Validator:  id,
			Checkpoint: next,
			Rate:       rate,
			Gross:      acc.Gross,
			Net:        acc.Net,
			Commission: acc.Commission,
			Positions:  acc.Positions,
			AccruedAt:  now,
		}},
	}
	if err := e.commit(ctx, cs); err != nil {
		return Accrual{}, err
	}

	for i, ps := range states {
		ps.p = positions[i]
	}
	vs.mu.Lock()
	vs.v.Checkpoint = next
	vs.v.LastRate = rate
	vs.v.CommissionEarned = earned
	vs.mu.Unlock()

	e.observe(RewardsAccrued{Accrual: acc, At: now})
	return acc, nil
}

func (a *Accrual) add(r Reward) error {
	gross, ok1 := addChecked(a.Gross, r.Gross)
	net, ok2 := addChecked(a.Net, r.Net)
	commission, ok3 := addChecked(a.Commission, r.Commission)
	if !ok1 || !ok2 || !ok3 {
		return fmt.Errorf("%w: period totals of %s", ErrRewardOverflow, a.Validator)
	}
	a.Gross, a.Net, a.Commission = gross, net, commission
	return nil
}
