package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var errNoPayout = errors.New("no payout configured")

// compensationTimeout bounds the rollback commit, which outlives the request context
const compensationTimeout = 10 * time.Second

// ClaimRewards settles the unclaimed reward of a position and hands it to the
// payout. The settlement is persisted together with a claim record before the
// transfer; when the transfer fails the position is restored, the claim is
// voided and ErrPayoutFailed is returned. When the payout cannot tell whether
// the transfer happened the settlement stands and the claim is returned with
// ErrPayoutUnconfirmed, to be reconciled by its ID.
func (e *Engine) ClaimRewards(ctx context.Context, delegator DelegatorID, validator ValidatorID) (Claim, error) {
	vs, err := e.lookup(validator)
	if err != nil {
		return Claim{}, err
	}

	vs.barrier.RLock()
	defer vs.barrier.RUnlock()

	ps, ok := vs.acquire(delegator, false)
	if !ok {
		return Claim{}, positionNotFound(delegator, validator)
	}
	defer vs.release(ps)

	v := vs.snapshot()
	accrued := ps.p
	reward, err := catchUp(v, &accrued)
	if err != nil {
		return Claim{}, err
	}
	if accrued.Unclaimed == 0 {
		return Claim{}, fmt.Errorf("%w: %s/%s", ErrNothingToClaim, delegator, validator)
	}

	claim := Claim{
		ID:         uuid.New(),
		Delegator:  delegator,
		Validator:  validator,
		Amount:     accrued.Unclaimed,
		Checkpoint: v.Checkpoint,
		ClaimedAt:  e.clock.Now(),
	}

	settled := accrued
	settled.Unclaimed = 0
	settled.LastClaimed = v.Checkpoint
	removed := settled.Empty()

	cs := Changeset{Claims: []Claim{claim}}
	if reward.Commission > 0 {
		cs.StakeAdjustments = []StakeAdjustment{{Validator: validator, Commission: reward.Commission}}
	}
	if removed {
		cs.RemovedPositions = []PositionKey{settled.Key()}
	} else {
		cs.Positions = []Position{settled}
	}
	if err := e.commit(ctx, cs); err != nil {
		return Claim{}, err
	}
	// the catch-up is part of the committed change whatever the payout does
	vs.addCommission(reward.Commission)

	if err := e.transfer(ctx, claim); err != nil {
		if errors.Is(err, ErrPayoutUnconfirmed) {
			// restoring the position could pay the delegator twice
			ps.p, ps.exists = settled, !removed
			e.observe(ClaimUnconfirmed{Claim: claim, Removed: removed, Err: err})
			return claim, fmt.Errorf("claim %s: %w", claim.ID, err)
		}

		claim.Voided = true
		compensate := Changeset{
			Positions:    []Position{accrued},
			VoidedClaims: []uuid.UUID{claim.ID},
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		// keep the entitlement in memory even when the store cannot be compensated
		cerr := e.commit(cctx, compensate)
		cancel()
		ps.p, ps.exists = accrued, true

		e.observe(ClaimRolledBack{Claim: claim, Err: errors.Join(err, cerr)})
		return Claim{}, errors.Join(fmt.Errorf("%w: %w", ErrPayoutFailed, err), cerr)
	}

	ps.p, ps.exists = settled, !removed

	e.observe(RewardsClaimed{Claim: claim, Removed: removed})
	return claim, nil
}

func (e *Engine) transfer(ctx context.Context, claim Claim) error {
	if e.payout == nil {
		return errNoPayout
	}
	return e.payout.Transfer(ctx, Transfer{ClaimID: claim.ID, To: claim.Delegator, Amount: claim.Amount})
}
