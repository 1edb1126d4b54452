package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/staking/store/dbrow"
)

// Sentinel errors for store operations
var (
	ErrTransactionFailed = errors.New("transaction failed")
	ErrTempTableFailed   = errors.New("temporary table operation failed")
	ErrCopyFailed        = errors.New("bulk copy operation failed")
	ErrWriteFailed       = errors.New("write operation failed")
	ErrLoadFailed        = errors.New("loading state failed")
	ErrQueryFailed       = errors.New("history query failed")
	ErrUnknownValidator  = errors.New("stake adjustment for unknown validator")
	ErrUnknownClaim      = errors.New("void of unknown claim")
)

// SQL statements
const (
	selectValidatorsSQL = `
		SELECT id, status, commission_bps, total_stake, checkpoint, last_rate, commission_earned, registered_at
		FROM validators ORDER BY id`

	selectPositionsSQL = `
		SELECT delegator, validator, staked, unclaimed, last_claimed, last_accrued
		FROM positions ORDER BY validator, delegator`

	// total_stake and commission_earned of existing rows only move through adjustments
	upsertValidatorSQL = `
		INSERT INTO validators (id, status, commission_bps, total_stake, checkpoint, last_rate, commission_earned, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			checkpoint = EXCLUDED.checkpoint,
			last_rate = EXCLUDED.last_rate,
			updated_at = CURRENT_TIMESTAMP`

	adjustValidatorSQL = `
		UPDATE validators SET
			total_stake = total_stake + $2 - $3,
			commission_earned = commission_earned + $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	upsertPositionSQL = `
		INSERT INTO positions (delegator, validator, staked, unclaimed, last_claimed, last_accrued)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (validator, delegator) DO UPDATE SET
			staked = EXCLUDED.staked,
			unclaimed = EXCLUDED.unclaimed,
			last_claimed = EXCLUDED.last_claimed,
			last_accrued = EXCLUDED.last_accrued,
			updated_at = CURRENT_TIMESTAMP`

	createTempPositionsSQL = `
		CREATE TEMPORARY TABLE temp_positions (
			delegator TEXT,
			validator TEXT,
			staked BIGINT,
			unclaimed BIGINT,
			last_claimed BIGINT,
			last_accrued BIGINT
		) ON COMMIT DROP`

	mergePositionsSQL = `
		INSERT INTO positions (delegator, validator, staked, unclaimed, last_claimed, last_accrued)
		SELECT delegator, validator, staked, unclaimed, last_claimed, last_accrued
		FROM temp_positions
		ON CONFLICT (validator, delegator) DO UPDATE SET
			staked = EXCLUDED.staked,
			unclaimed = EXCLUDED.unclaimed,
			last_claimed = EXCLUDED.last_claimed,
			last_accrued = EXCLUDED.last_accrued,
			updated_at = CURRENT_TIMESTAMP`

	deletePositionSQL = `DELETE FROM positions WHERE validator = $1 AND delegator = $2`

	insertPeriodSQL = `
		INSERT INTO reward_periods (validator, checkpoint, rate, gross, net, commission, positions, accrued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertClaimSQL = `
		INSERT INTO claims (id, delegator, validator, amount, checkpoint, claimed_at, voided)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	voidClaimSQL = `UPDATE claims SET voided = TRUE, voided_at = CURRENT_TIMESTAMP WHERE id = $1`
)

// bulkThreshold is the number of positions from which a commit copies them
// through a temporary table
const bulkThreshold = 16

// Store implements staking.Store using pgx
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with an existing connection pool
// Returns the store and a closer function
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// Load reads the full engine state
func (s *Store) Load(ctx context.Context) (staking.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return staking.Snapshot{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	validators, err := collect(ctx, tx, selectValidatorsSQL, dbrow.Validator.ToDomain)
	if err != nil {
		return staking.Snapshot{}, err
	}
	positions, err := collect(ctx, tx, selectPositionsSQL, dbrow.Position.ToDomain)
	if err != nil {
		return staking.Snapshot{}, err
	}

	return staking.Snapshot{Validators: validators, Positions: positions}, nil
}

// Commit applies a changeset in a single transaction
func (s *Store) Commit(ctx context.Context, cs staking.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if commit succeeds

	steps := []func(context.Context, pgx.Tx, staking.Changeset) error{
		saveValidators,
		adjustValidators,
		savePositions,
		removePositions,
		savePeriods,
		saveClaims,
		voidClaims,
	}
	for _, step := range steps {
		if err := step(ctx, tx, cs); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	return nil
}

func saveValidators(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	for _, v := range cs.Validators {
		r, err := dbrow.FromValidator(v)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, upsertValidatorSQL,
			r.ID, r.Status, r.CommissionBps, r.TotalStake, r.Checkpoint, r.LastRate, r.CommissionEarned, r.RegisteredAt)
		if err != nil {
			return fmt.Errorf("%w: validator %s: %w", ErrWriteFailed, v.ID, err)
		}
	}
	return nil
}

func adjustValidators(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	for _, adj := range cs.StakeAdjustments {
		credit, err := dbrow.Signed("credit", adj.Credit)
		if err != nil {
			return err
		}
		debit, err := dbrow.Signed("debit", adj.Debit)
		if err != nil {
			return err
		}
		commission, err := dbrow.Signed("commission", adj.Commission)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, adjustValidatorSQL, string(adj.Validator), credit, debit, commission)
		if err != nil {
			return fmt.Errorf("%w: adjust %s: %w", ErrWriteFailed, adj.Validator, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrUnknownValidator, adj.Validator)
		}
	}
	return nil
}

func savePositions(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	if len(cs.Positions) >= bulkThreshold {
		return copyPositions(ctx, tx, cs.Positions)
	}

	for _, p := range cs.Positions {
		r, err := dbrow.FromPosition(p)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, upsertPositionSQL, r.Delegator, r.Validator, r.Staked, r.Unclaimed, r.LastClaimed, r.LastAccrued)
		if err != nil {
			return fmt.Errorf("%w: position %s/%s: %w", ErrWriteFailed, p.Delegator, p.Validator, err)
		}
	}
	return nil
}

// copyPositions upserts an accrual pass worth of positions with CopyFrom through a
// temporary table
func copyPositions(ctx context.Context, tx pgx.Tx, positions []staking.Position) error {
	rows, err := dbrow.PositionsToRows(positions)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, createTempPositionsSQL); err != nil {
		return fmt.Errorf("%w: %w", ErrTempTableFailed, err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"temp_positions"}, dbrow.PositionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}

	if _, err := tx.Exec(ctx, mergePositionsSQL); err != nil {
		return fmt.Errorf("%w: merge positions: %w", ErrWriteFailed, err)
	}
	return nil
}

func removePositions(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	for _, k := range cs.RemovedPositions {
		if _, err := tx.Exec(ctx, deletePositionSQL, string(k.Validator), string(k.Delegator)); err != nil {
			return fmt.Errorf("%w: remove position %s/%s: %w", ErrWriteFailed, k.Delegator, k.Validator, err)
		}
	}
	return nil
}

func savePeriods(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	for _, p := range cs.Periods {
		r, err := dbrow.FromPeriod(p)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertPeriodSQL,
			r.Validator, r.Checkpoint, r.Rate, r.Gross, r.Net, r.Commission, r.Positions, r.AccruedAt)
		if err != nil {
			return fmt.Errorf("%w: period %s/%d: %w", ErrWriteFailed, p.Validator, p.Checkpoint, err)
		}
	}
	return nil
}

func saveClaims(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	for _, c := range cs.Claims {
		r, err := dbrow.FromClaim(c)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertClaimSQL, r.ID, r.Delegator, r.Validator, r.Amount, r.Checkpoint, r.ClaimedAt, r.Voided)
		if err != nil {
			return fmt.Errorf("%w: claim %s: %w", ErrWriteFailed, c.ID, err)
		}
	}
	return nil
}

func voidClaims(ctx context.Context, tx pgx.Tx, cs staking.Changeset) error {
	for _, id := range cs.VoidedClaims {
		tag, err := tx.Exec(ctx, voidClaimSQL, id)
		if err != nil {
			return fmt.Errorf("%w: void claim %s: %w", ErrWriteFailed, id, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrUnknownClaim, id)
		}
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// collect runs a query, maps every row by column name and converts it to the
// engine type
func collect[R any, T any](ctx context.Context, q querier, sql string, toDomain func(R) (T, error), args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[R])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	out := make([]T, len(records))
	for i, r := range records {
		if out[i], err = toDomain(r); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
	}
	return out, nil
}

var _ staking.Store = (*Store)(nil)
