// Package metrics exposes engine and scheduler activity as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/screwyprof/stakeledger/checkpointer"
	"github.com/screwyprof/stakeledger/staking"
)

const namespace = "stakeledger"

// Claim outcomes
const (
	outcomePaid        = "paid"
	outcomeRolledBack  = "rolled_back"
	outcomeUnconfirmed = "unconfirmed"
)

// Metrics translates committed engine events and scheduler rounds into
// Prometheus series. Amounts are in the ledger's base unit.
type Metrics struct {
	validators       *prometheus.GaugeVec
	totalStake       *prometheus.GaugeVec
	checkpoint       *prometheus.GaugeVec
	delegated        *prometheus.CounterVec
	undelegated      *prometheus.CounterVec
	rewardsNet       *prometheus.CounterVec
	rewardsFee       *prometheus.CounterVec
	claims           *prometheus.CounterVec
	claimed          *prometheus.CounterVec
	roundDuration    prometheus.Histogram
	advanceFailures  *prometheus.CounterVec
	positionsAccrued prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_active",
			Help:      "1 if the validator accepts delegations, 0 otherwise",
		}, []string{"validator"}),
		totalStake: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_total_stake",
			Help:      "Stake delegated to the validator",
		}, []string{"validator"}),
		checkpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_checkpoint",
			Help:      "Latest accrual checkpoint of the validator",
		}, []string{"validator"}),
		delegated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegated_total",
			Help:      "Amount delegated",
		}, []string{"validator"}),
		undelegated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undelegated_total",
			Help:      "Amount undelegated",
		}, []string{"validator"}),
		rewardsNet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_accrued_total",
			Help:      "Net rewards credited to delegators",
		}, []string{"validator"}),
		rewardsFee: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_accrued_total",
			Help:      "Commission withheld by the validator",
		}, []string{"validator"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Number of claims by outcome",
		}, []string{"outcome"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_amount_total",
			Help:      "Amount claimed by outcome",
		}, []string{"outcome"}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_round_duration_seconds",
			Help:      "Time spent advancing all active validators",
			Buckets:   prometheus.DefBuckets,
		}),
		advanceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_advance_failures_total",
			Help:      "Number of failed checkpoint advances",
		}, []string{"validator"}),
		positionsAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_accrued_total",
			Help:      "Number of position updates performed by accrual passes",
		}),
	}

	err := errors.Join(
		reg.Register(m.validators),
		reg.Register(m.totalStake),
		reg.Register(m.checkpoint),
		reg.Register(m.delegated),
		reg.Register(m.undelegated),
		reg.Register(m.rewardsNet),
		reg.Register(m.rewardsFee),
		reg.Register(m.claims),
		reg.Register(m.claimed),
		reg.Register(m.roundDuration),
		reg.Register(m.advanceFailures),
		reg.Register(m.positionsAccrued),
	)
	return m, err
}

// Prime seeds the gauges from the current registry, e.g. after a restore
func (m *Metrics) Prime(validators []staking.Validator) {
	for _, v := range validators {
		id := string(v.ID)
		m.validators.WithLabelValues(id).Set(active(v.Status))
		m.totalStake.WithLabelValues(id).Set(float64(v.TotalStake))
		m.checkpoint.WithLabelValues(id).Set(float64(v.Checkpoint))
	}
}

// Observe is a staking.Observer
func (m *Metrics) Observe(e staking.Event) {
	switch ev := e.(type) {
	case staking.ValidatorRegistered:
		id := string(ev.Validator)
		m.validators.WithLabelValues(id).Set(1)
		m.totalStake.WithLabelValues(id).Set(0)
		m.checkpoint.WithLabelValues(id).Set(0)
	case staking.ValidatorStatusChanged:
		m.validators.WithLabelValues(string(ev.Validator)).Set(active(ev.Status))
	case staking.StakeDelegated:
		id := string(ev.Position.Validator)
		m.delegated.WithLabelValues(id).Add(float64(ev.Amount))
		m.totalStake.WithLabelValues(id).Set(float64(ev.TotalStake))
	case staking.StakeUndelegated:
		id := string(ev.Position.Validator)
		m.undelegated.WithLabelValues(id).Add(float64(ev.Amount))
		m.totalStake.WithLabelValues(id).Set(float64(ev.TotalStake))
	case staking.RewardsAccrued:
		id := string(ev.Accrual.Validator)
		m.checkpoint.WithLabelValues(id).Set(float64(ev.Accrual.Checkpoint))
		m.rewardsNet.WithLabelValues(id).Add(float64(ev.Accrual.Net))
		m.rewardsFee.WithLabelValues(id).Add(float64(ev.Accrual.Commission))
		m.positionsAccrued.Add(float64(ev.Accrual.Positions))
	case staking.RewardsClaimed:
		m.claims.WithLabelValues(outcomePaid).Inc()
		m.claimed.WithLabelValues(outcomePaid).Add(float64(ev.Claim.Amount))
	case staking.ClaimRolledBack:
		m.claims.WithLabelValues(outcomeRolledBack).Inc()
		m.claimed.WithLabelValues(outcomeRolledBack).Add(float64(ev.Claim.Amount))
	case staking.ClaimUnconfirmed:
		m.claims.WithLabelValues(outcomeUnconfirmed).Inc()
		m.claimed.WithLabelValues(outcomeUnconfirmed).Add(float64(ev.Claim.Amount))
	}
}

// ObserveRound records a completed scheduler round
func (m *Metrics) ObserveRound(r checkpointer.RoundCompleted) {
	m.roundDuration.Observe(r.Duration.Seconds())
}

// ObserveAdvanceFailure records a validator the scheduler could not advance
func (m *Metrics) ObserveAdvanceFailure(f checkpointer.AdvanceFailed) {
	m.advanceFailures.WithLabelValues(string(f.Validator)).Inc()
}

func active(s staking.Status) float64 {
	if s == staking.StatusActive {
		return 1
	}
	return 0
}
