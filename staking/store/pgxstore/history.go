package pgxstore

import (
	"context"
	"fmt"

	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/staking/store/dbrow"
)

// FindClaims returns up to limit claims matching the filter, latest first, and
// whether more follow
func (s *Store) FindClaims(ctx context.Context, filter staking.ClaimFilter, offset, limit uint64) ([]staking.Claim, bool, error) {
	query, args := NewClaimsQuery(filter).Paginate(offset, limit).Build()
	claims, err := collect(ctx, s.pool, query, dbrow.Claim.ToDomain, args...)
	if err != nil {
		return nil, false, historyError(err)
	}
	return trim(claims, limit)
}

// FindPeriods returns up to limit accrual periods of a validator, latest first,
// and whether more follow
func (s *Store) FindPeriods(ctx context.Context, validator staking.ValidatorID, offset, limit uint64) ([]staking.PeriodRecord, bool, error) {
	query, args := NewPeriodsQuery(validator).Paginate(offset, limit).Build()
	periods, err := collect(ctx, s.pool, query, dbrow.Period.ToDomain, args...)
	if err != nil {
		return nil, false, historyError(err)
	}
	return trim(periods, limit)
}

// trim drops the extra record requested to detect "has more"
func trim[T any](items []T, limit uint64) ([]T, bool, error) {
	if uint64(len(items)) > limit {
		return items[:limit], true, nil
	}
	return items, false, nil
}

func historyError(err error) error {
	return fmt.Errorf("%w: %w", ErrQueryFailed, err)
}
