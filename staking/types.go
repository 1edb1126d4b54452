package staking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxCommissionBps is 100% expressed in basis points
const MaxCommissionBps = 10_000

// ValidatorID identifies a validator (an address-like key)
type ValidatorID string

// DelegatorID identifies a delegator as verified by the identity provider
type DelegatorID string

// Status of a validator in the registry
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus converts the textual status representation
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Validator is a registry entry. TotalStake always equals the sum of Staked over
// the validator's positions.
type Validator struct {
	ID               ValidatorID
	Status           Status
	CommissionBps    uint16
	TotalStake       uint64
	Checkpoint       uint64 // last accrual checkpoint
	LastRate         Rate   // rate applied at Checkpoint
	CommissionEarned uint64
	RegisteredAt     time.Time
}

// Active reports whether the validator accepts new delegations
func (v Validator) Active() bool {
	return v.Status == StatusActive
}

// PositionKey identifies a delegation position
type PositionKey struct {
	Delegator DelegatorID
	Validator ValidatorID
}

// Position is the stake one delegator keeps behind one validator.
//
// LastAccrued is the checkpoint up to which Unclaimed has been computed;
// LastClaimed is the checkpoint of the latest settlement.
type Position struct {
	Delegator   DelegatorID
	Validator   ValidatorID
	Staked      uint64
	Unclaimed   uint64
	LastClaimed uint64
	LastAccrued uint64
}

// Key returns the position identity
func (p Position) Key() PositionKey {
	return PositionKey{Delegator: p.Delegator, Validator: p.Validator}
}

// Empty reports whether both balances reached zero and the position can be removed
func (p Position) Empty() bool {
	return p.Staked == 0 && p.Unclaimed == 0
}

// PeriodRecord is the audit trail of a single accrual pass
type PeriodRecord struct {
	Validator  ValidatorID
	Checkpoint uint64
	Rate       Rate
	Gross      uint64
	Net        uint64
	Commission uint64
	Positions  int
	AccruedAt  time.Time
}

// Claim records a settlement
type Claim struct {
	ID         uuid.UUID
	Delegator  DelegatorID
	Validator  ValidatorID
	Amount     uint64
	Checkpoint uint64
	ClaimedAt  time.Time
	Voided     bool
}

// Accrual summarises an AdvanceCheckpoint call
type Accrual struct {
	Validator  ValidatorID
	Checkpoint uint64
	Rate       Rate
	Gross      uint64
	Net        uint64
	Commission uint64
	Positions  int
}

// Transfer is the instruction handed to the payout primitive
type Transfer struct {
	ClaimID uuid.UUID
	To      DelegatorID
	Amount  uint64
}

// Payout moves funds to a delegator. A non-nil error means nothing was
// transferred, unless it wraps ErrPayoutUnconfirmed: then the transfer may have
// executed and Transfer.ClaimID is the reference to reconcile it by.
type Payout interface {
	Transfer(ctx context.Context, t Transfer) error
}

// PayoutFunc adapts a function to the Payout interface
type PayoutFunc func(ctx context.Context, t Transfer) error

// Transfer calls f(ctx, t)
func (f PayoutFunc) Transfer(ctx context.Context, t Transfer) error {
	return f(ctx, t)
}

// EmissionSchedule supplies the per-period reward rate of a validator
type EmissionSchedule interface {
	PerPeriodRate(ctx context.Context, validator ValidatorID, checkpoint uint64) (Rate, error)
}

// FixedRate is an EmissionSchedule returning the same rate for every validator and period
type FixedRate Rate

// PerPeriodRate implements EmissionSchedule
func (r FixedRate) PerPeriodRate(context.Context, ValidatorID, uint64) (Rate, error) {
	return Rate(r), nil
}

// Clock abstracts time for production and testing
type Clock interface {
	Now() time.Time
}
