package staking

import "time"

// Event is emitted after a state change has been committed
// --------------------------------------------------------
type Event any

type ValidatorRegistered struct {
	Validator     ValidatorID
	CommissionBps uint16
	At            time.Time
}

type ValidatorStatusChanged struct {
	Validator ValidatorID
	Status    Status
	At        time.Time
}

type StakeDelegated struct {
	Position   Position
	Amount     uint64
	TotalStake uint64
	At         time.Time
}

type StakeUndelegated struct {
	Position   Position
	Amount     uint64
	TotalStake uint64
	Removed    bool
	At         time.Time
}

type RewardsAccrued struct {
	Accrual Accrual
	At      time.Time
}

type RewardsClaimed struct {
	Claim   Claim
	Removed bool
}

type ClaimRolledBack struct {
	Claim Claim
	Err   error // why the payout failed
}

// ClaimUnconfirmed is emitted when the payout outcome is unknown. The claim
// stays settled until it is reconciled.
type ClaimUnconfirmed struct {
	Claim   Claim
	Removed bool
	Err     error
}

// Observer receives committed events. It is called synchronously and must not
// call back into the engine.
type Observer func(Event)

// Observers fans an event out to several observers
func Observers(obs ...Observer) Observer {
	return func(e Event) {
		for _, o := range obs {
			if o != nil {
				o(e)
			}
		}
	}
}
