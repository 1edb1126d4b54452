package pgxstore

import (
	"fmt"

	"github.com/screwyprof/stakeledger/staking"
)

// SQL queries
const (
	baseClaimsQuery  = "SELECT id, delegator, validator, amount, checkpoint, claimed_at, voided FROM claims"
	basePeriodsQuery = "SELECT validator, checkpoint, rate, gross, net, commission, positions, accrued_at FROM reward_periods"
)

// HistoryQueryBuilder builds paginated queries over the claim and period history
type HistoryQueryBuilder struct {
	sql  string
	args []any
}

// NewClaimsQuery creates a claims query narrowed by the filter
func NewClaimsQuery(filter staking.ClaimFilter) *HistoryQueryBuilder {
	q := &HistoryQueryBuilder{sql: baseClaimsQuery}
	if filter.Delegator != "" {
		q.addWhereCondition("delegator = $%d", string(filter.Delegator))
	}
	if filter.Validator != "" {
		q.addWhereCondition("validator = $%d", string(filter.Validator))
	}
	q.sql += " ORDER BY claimed_at DESC, id"
	return q
}

// NewPeriodsQuery creates a query over the periods of one validator, latest first
func NewPeriodsQuery(validator staking.ValidatorID) *HistoryQueryBuilder {
	q := &HistoryQueryBuilder{sql: basePeriodsQuery}
	q.addWhereCondition("validator = $%d", string(validator))
	q.sql += " ORDER BY checkpoint DESC"
	return q
}

// Paginate adds pagination with "has more" detection using LIMIT n+1
func (q *HistoryQueryBuilder) Paginate(offset, limit uint64) *HistoryQueryBuilder {
	q.addParameter("LIMIT $%d", limit+1)
	if offset > 0 {
		q.addParameter("OFFSET $%d", offset)
	}
	return q
}

// Build returns the final SQL query and arguments
func (q *HistoryQueryBuilder) Build() (string, []any) {
	return q.sql, q.args
}

// addWhereCondition adds a WHERE condition, handling AND logic automatically
func (q *HistoryQueryBuilder) addWhereCondition(sqlClause string, value any) {
	placeholder := q.nextPlaceholder()

	if len(q.args) > 0 {
		q.sql += " AND " + fmt.Sprintf(sqlClause, placeholder)
	} else {
		q.sql += " WHERE " + fmt.Sprintf(sqlClause, placeholder)
	}

	q.args = append(q.args, value)
}

// addParameter adds a SQL clause with a parameter
func (q *HistoryQueryBuilder) addParameter(sqlClause string, value any) {
	placeholder := q.nextPlaceholder()
	q.sql += " " + fmt.Sprintf(sqlClause, placeholder)
	q.args = append(q.args, value)
}

func (q *HistoryQueryBuilder) nextPlaceholder() int {
	return len(q.args) + 1
}
