// Package ledger describes what the HTTP API needs from the staking engine and
// its history store.
package ledger

import (
	"context"

	"github.com/screwyprof/stakeledger/staking"
)

// Registry manages validators
type Registry interface {
	RegisterValidator(ctx context.Context, id staking.ValidatorID, commissionBps uint16) (staking.Validator, error)
	SetValidatorStatus(ctx context.Context, id staking.ValidatorID, status staking.Status) (staking.Validator, error)
	GetValidator(ctx context.Context, id staking.ValidatorID) (staking.Validator, error)
	ListValidators(ctx context.Context) []staking.Validator
	AdvanceCheckpoint(ctx context.Context, id staking.ValidatorID) (staking.Accrual, error)
}

// Positions manages delegations and claims
type Positions interface {
	Delegate(ctx context.Context, delegator staking.DelegatorID, validator staking.ValidatorID, amount uint64) (staking.Position, error)
	Undelegate(ctx context.Context, delegator staking.DelegatorID, validator staking.ValidatorID, amount uint64) (staking.Position, error)
	ClaimRewards(ctx context.Context, delegator staking.DelegatorID, validator staking.ValidatorID) (staking.Claim, error)
	GetPosition(ctx context.Context, delegator staking.DelegatorID, validator staking.ValidatorID) (staking.Position, error)
	ListPositions(ctx context.Context, validator staking.ValidatorID, offset, limit uint64) ([]staking.Position, bool, error)
}

// Engine is the full engine surface used by the API
type Engine interface {
	Registry
	Positions
}

// History queries persisted claims and accrual periods
type History interface {
	FindClaims(ctx context.Context, filter staking.ClaimFilter, offset, limit uint64) ([]staking.Claim, bool, error)
	FindPeriods(ctx context.Context, validator staking.ValidatorID, offset, limit uint64) ([]staking.PeriodRecord, bool, error)
}

var _ Engine = (*staking.Engine)(nil)
