package staking

import (
	"context"

	"github.com/google/uuid"
)

// Store persists engine state. The engine keeps the authoritative copy in memory
// and writes every staged change through Commit before applying it, so a failed
// Commit leaves both copies untouched.
type Store interface {
	// Load returns the persisted state used to restore an engine
	Load(ctx context.Context) (Snapshot, error)
	// Commit atomically applies a changeset
	Commit(ctx context.Context, cs Changeset) error
}

// Snapshot is the full persisted engine state
type Snapshot struct {
	Validators []Validator
	Positions  []Position
}

// StakeAdjustment is a relative change of a validator aggregate. Aggregates are
// adjusted relatively because positions of one validator commit concurrently.
type StakeAdjustment struct {
	Validator  ValidatorID
	Credit     uint64
	Debit      uint64
	Commission uint64 // added to CommissionEarned
}

// Changeset is one all-or-nothing unit of persisted change.
//
// Validators upserts only overwrite Status, Checkpoint and LastRate of an existing
// row; TotalStake and CommissionEarned only move through StakeAdjustments.
type Changeset struct {
	Validators       []Validator
	StakeAdjustments []StakeAdjustment
	Positions        []Position
	RemovedPositions []PositionKey
	Periods          []PeriodRecord
	Claims           []Claim
	VoidedClaims     []uuid.UUID
}

// Empty reports whether the changeset carries no change
func (cs Changeset) Empty() bool {
	return len(cs.Validators) == 0 &&
		len(cs.StakeAdjustments) == 0 &&
		len(cs.Positions) == 0 &&
		len(cs.RemovedPositions) == 0 &&
		len(cs.Periods) == 0 &&
		len(cs.Claims) == 0 &&
		len(cs.VoidedClaims) == 0
}

// DiscardStore is a Store for memory-only engines
type DiscardStore struct{}

// Load returns an empty snapshot
func (DiscardStore) Load(context.Context) (Snapshot, error) { return Snapshot{}, nil }

// Commit drops the changeset
func (DiscardStore) Commit(context.Context, Changeset) error { return nil }
