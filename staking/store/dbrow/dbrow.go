// Package dbrow maps engine state to database rows. Balances are unsigned in the
// engine and BIGINT in PostgreSQL; conversions fail instead of wrapping.
package dbrow

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/stakeledger/staking"
)

// ErrOutOfRange is returned when a value does not fit the column or the engine type
var ErrOutOfRange = errors.New("value out of range")

// Validator represents a validators row
type Validator struct {
	ID               string    `db:"id"`
	Status           string    `db:"status"`
	CommissionBps    int32     `db:"commission_bps"`
	TotalStake       int64     `db:"total_stake"`
	Checkpoint       int64     `db:"checkpoint"`
	LastRate         int64     `db:"last_rate"`
	CommissionEarned int64     `db:"commission_earned"`
	RegisteredAt     time.Time `db:"registered_at"`
}

// Position represents a positions row
type Position struct {
	Delegator   string `db:"delegator"`
	Validator   string `db:"validator"`
	Staked      int64  `db:"staked"`
	Unclaimed   int64  `db:"unclaimed"`
	LastClaimed int64  `db:"last_claimed"`
	LastAccrued int64  `db:"last_accrued"`
}

// Period represents a reward_periods row
type Period struct {
	Validator  string    `db:"validator"`
	Checkpoint int64     `db:"checkpoint"`
	Rate       int64     `db:"rate"`
	Gross      int64     `db:"gross"`
	Net        int64     `db:"net"`
	Commission int64     `db:"commission"`
	Positions  int32     `db:"positions"`
	AccruedAt  time.Time `db:"accrued_at"`
}

// Claim represents a claims row
type Claim struct {
	ID         uuid.UUID `db:"id"`
	Delegator  string    `db:"delegator"`
	Validator  string    `db:"validator"`
	Amount     int64     `db:"amount"`
	Checkpoint int64     `db:"checkpoint"`
	ClaimedAt  time.Time `db:"claimed_at"`
	Voided     bool      `db:"voided"`
}

// PositionColumns lists the positions columns in the order of PositionsToRows
var PositionColumns = []string{"delegator", "validator", "staked", "unclaimed", "last_claimed", "last_accrued"}

// FromValidator converts an engine validator to a row
func FromValidator(v staking.Validator) (Validator, error) {
	var c converter
	row := Validator{
		ID:               string(v.ID),
		Status:           string(v.Status),
		CommissionBps:    int32(v.CommissionBps),
		TotalStake:       c.signed("total_stake", v.TotalStake),
		Checkpoint:       c.signed("checkpoint", v.Checkpoint),
		LastRate:         c.signed("last_rate", uint64(v.LastRate)),
		CommissionEarned: c.signed("commission_earned", v.CommissionEarned),
		RegisteredAt:     v.RegisteredAt,
	}
	return row, c.err
}

// ToDomain converts the row to an engine validator
func (r Validator) ToDomain() (staking.Validator, error) {
	var c converter
	status, err := staking.ParseStatus(r.Status)
	if err != nil {
		return staking.Validator{}, err
	}
	if r.CommissionBps < 0 || r.CommissionBps > staking.MaxCommissionBps {
		return staking.Validator{}, fmt.Errorf("%w: commission_bps %d", ErrOutOfRange, r.CommissionBps)
	}
	v := staking.Validator{
		ID:               staking.ValidatorID(r.ID),
		Status:           status,
		CommissionBps:    uint16(r.CommissionBps),
		TotalStake:       c.unsigned("total_stake", r.TotalStake),
		Checkpoint:       c.unsigned("checkpoint", r.Checkpoint),
		LastRate:         staking.Rate(c.unsigned("last_rate", r.LastRate)),
		CommissionEarned: c.unsigned("commission_earned", r.CommissionEarned),
		RegisteredAt:     r.RegisteredAt,
	}
	return v, c.err
}

// FromPosition converts an engine position to a row
func FromPosition(p staking.Position) (Position, error) {
	var c converter
	row := Position{
		Delegator:   string(p.Delegator),
		Validator:   string(p.Validator),
		Staked:      c.signed("staked", p.Staked),
		Unclaimed:   c.signed("unclaimed", p.Unclaimed),
		LastClaimed: c.signed("last_claimed", p.LastClaimed),
		LastAccrued: c.signed("last_accrued", p.LastAccrued),
	}
	return row, c.err
}

// ToDomain converts the row to an engine position
func (r Position) ToDomain() (staking.Position, error) {
	var c converter
	p := staking.Position{
		Delegator:   staking.DelegatorID(r.Delegator),
		Validator:   staking.ValidatorID(r.Validator),
		Staked:      c.unsigned("staked", r.Staked),
		Unclaimed:   c.unsigned("unclaimed", r.Unclaimed),
		LastClaimed: c.unsigned("last_claimed", r.LastClaimed),
		LastAccrued: c.unsigned("last_accrued", r.LastAccrued),
	}
	return p, c.err
}

// PositionsToRows converts positions directly to [][]any for pgx.CopyFromRows
func PositionsToRows(positions []staking.Position) ([][]any, error) {
	rows := make([][]any, len(positions))
	for i, p := range positions {
		r, err := FromPosition(p)
		if err != nil {
			return nil, err
		}
		rows[i] = []any{r.Delegator, r.Validator, r.Staked, r.Unclaimed, r.LastClaimed, r.LastAccrued}
	}
	return rows, nil
}

// FromPeriod converts a period record to a row
func FromPeriod(p staking.PeriodRecord) (Period, error) {
	var c converter
	if p.Positions > math.MaxInt32 {
		return Period{}, fmt.Errorf("%w: positions %d", ErrOutOfRange, p.Positions)
	}
	row := Period{
		Validator:  string(p.Validator),
		Checkpoint: c.signed("checkpoint", p.Checkpoint),
		Rate:       c.signed("rate", uint64(p.Rate)),
		Gross:      c.signed("gross", p.Gross),
		Net:        c.signed("net", p.Net),
		Commission: c.signed("commission", p.Commission),
		Positions:  int32(p.Positions),
		AccruedAt:  p.AccruedAt,
	}
	return row, c.err
}

// ToDomain converts the row to a period record
func (r Period) ToDomain() (staking.PeriodRecord, error) {
	var c converter
	p := staking.PeriodRecord{
		Validator:  staking.ValidatorID(r.Validator),
		Checkpoint: c.unsigned("checkpoint", r.Checkpoint),
		Rate:       staking.Rate(c.unsigned("rate", r.Rate)),
		Gross:      c.unsigned("gross", r.Gross),
		Net:        c.unsigned("net", r.Net),
		Commission: c.unsigned("commission", r.Commission),
		Positions:  int(r.Positions),
		AccruedAt:  r.AccruedAt,
	}
	return p, c.err
}

// FromClaim converts a claim to a row
func FromClaim(cl staking.Claim) (Claim, error) {
	var c converter
	row := Claim{
		ID:         cl.ID,
		Delegator:  string(cl.Delegator),
		Validator:  string(cl.Validator),
		Amount:     c.signed("amount", cl.Amount),
		Checkpoint: c.signed("checkpoint", cl.Checkpoint),
		ClaimedAt:  cl.ClaimedAt,
		Voided:     cl.Voided,
	}
	return row, c.err
}

// ToDomain converts the row to a claim
func (r Claim) ToDomain() (staking.Claim, error) {
	var c converter
	cl := staking.Claim{
		ID:         r.ID,
		Delegator:  staking.DelegatorID(r.Delegator),
		Validator:  staking.ValidatorID(r.Validator),
		Amount:     c.unsigned("amount", r.Amount),
		Checkpoint: c.unsigned("checkpoint", r.Checkpoint),
		ClaimedAt:  r.ClaimedAt,
		Voided:     r.Voided,
	}
	return cl, c.err
}

// Signed converts a balance to a BIGINT value
func Signed(column string, v uint64) (int64, error) {
	var c converter
	s := c.signed(column, v)
	return s, c.err
}

// converter keeps the first conversion error so a row can be built in one expression
type converter struct {
	err error
}

func (c *converter) signed(column string, v uint64) int64 {
	if v > math.MaxInt64 {
		c.fail(column, v)
		return 0
	}
	return int64(v)
}

func (c *converter) unsigned(column string, v int64) uint64 {
	if v < 0 {
		c.fail(column, v)
		return 0
	}
	return uint64(v)
}

func (c *converter) fail(column string, v any) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s %v", ErrOutOfRange, column, v)
	}
}
