package staking_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/screwyprof/stakeledger/staking"
)

type opKind int

const (
	opDelegate opKind = iota
	opUndelegate
	opClaim
	opAdvance
	opDeactivate
	opActivate
	opKinds
)

// op is one randomly generated engine call
type op struct {
	Kind      int
	Delegator int
	Validator int
	Amount    uint64
}

var (
	propValidators = []staking.ValidatorID{"tz1alpha", "tz1beta"}
	propDelegators = []staking.DelegatorID{"tz1a", "tz1b", "tz1c"}
)

func opGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(op{}), map[string]gopter.Gen{
		"Kind":      gen.IntRange(0, int(opKinds)-1),
		"Delegator": gen.IntRange(0, len(propDelegators)-1),
		"Validator": gen.IntRange(0, len(propValidators)-1),
		"Amount":    gen.UInt64Range(0, 1_000_000),
	})
}

// run applies ops to a fresh engine and returns it with the payout and events it used
func run(ops []op, rates staking.EmissionSchedule) (*staking.Engine, *fakePayout, *eventRecorder, error) {
	payout := &fakePayout{}
	recorder := &eventRecorder{}
	engine := staking.NewEngine(staking.DiscardStore{}, payout, rates,
		staking.WithClock(fixedClock{}), staking.WithObserver(recorder.observe))
	ctx := context.Background()

	for i, v := range propValidators {
		if _, err := engine.RegisterValidator(ctx, v, uint16(i*1500)); err != nil {
			return nil, nil, nil, err
		}
	}

	for _, o := range ops {
		d, v := propDelegators[o.Delegator], propValidators[o.Validator]

		var err error
		switch opKind(o.Kind) {
		case opDelegate:
			_, err = engine.Delegate(ctx, d, v, o.Amount)
		case opUndelegate:
			_, err = engine.Undelegate(ctx, d, v, o.Amount)
		case opClaim:
			_, err = engine.ClaimRewards(ctx, d, v)
		case opAdvance:
			_, err = engine.AdvanceCheckpoint(ctx, v)
		case opDeactivate:
			_, err = engine.Deactivate(ctx, v)
		case opActivate:
			_, err = engine.Activate(ctx, v)
		}
		if err != nil && !isCallerError(err) {
			return nil, nil, nil, fmt.Errorf("op %+v: %w", o, err)
		}
	}
	return engine, payout, recorder, nil
}

func isCallerError(err error) bool {
	for _, target := range []error{
		staking.ErrNotFound,
		staking.ErrInvalidAmount,
		staking.ErrValidatorNotActive,
		staking.ErrInsufficientStake,
		staking.ErrNothingToClaim,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type ledgerState struct {
	Validators []staking.Validator
	Positions  []staking.Position
}

func stateOf(engine *staking.Engine) (ledgerState, error) {
	ctx := context.Background()
	var s ledgerState
	for _, v := range engine.ListValidators(ctx) {
		s.Validators = append(s.Validators, v)
		positions, _, err := engine.ListPositions(ctx, v.ID, 0, 1<<20)
		if err != nil {
			return ledgerState{}, err
		}
		s.Positions = append(s.Positions, positions...)
	}
	return s, nil
}

// TestLedgerProperties checks the ledger invariants over random operation sequences
func TestLedgerProperties(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(nil)
	rates := staking.FixedRate(staking.RateFromPercent(3))

	properties.Property("validator stake equals the sum of its positions", prop.ForAll(
		func(ops []op) string {
			engine, _, _, err := run(ops, rates)
			if err != nil {
				return err.Error()
			}
			s, err := stateOf(engine)
			if err != nil {
				return err.Error()
			}

			sums := make(map[staking.ValidatorID]uint64)
			for _, p := range s.Positions {
				sums[p.Validator] += p.Staked
			}
			for _, v := range s.Validators {
				if v.TotalStake != sums[v.ID] {
					return fmt.Sprintf("validator %s holds %d, positions sum to %d", v.ID, v.TotalStake, sums[v.ID])
				}
			}
			return ""
		},
		gen.SliceOf(opGen()),
	))

	properties.Property("claims never run ahead of the validator checkpoint", prop.ForAll(
		func(ops []op) string {
			engine, _, _, err := run(ops, rates)
			if err != nil {
				return err.Error()
			}
			s, err := stateOf(engine)
			if err != nil {
				return err.Error()
			}

			checkpoints := make(map[staking.ValidatorID]uint64)
			for _, v := range s.Validators {
				checkpoints[v.ID] = v.Checkpoint
			}
			for _, p := range s.Positions {
				if p.LastClaimed > p.LastAccrued || p.LastAccrued > checkpoints[p.Validator] {
					return fmt.Sprintf("position %s/%s claimed %d accrued %d, validator at %d",
						p.Delegator, p.Validator, p.LastClaimed, p.LastAccrued, checkpoints[p.Validator])
				}
				if p.Empty() {
					return fmt.Sprintf("empty position %s/%s was kept", p.Delegator, p.Validator)
				}
			}
			return ""
		},
		gen.SliceOf(opGen()),
	))

	properties.Property("accrued rewards are either unclaimed or paid", prop.ForAll(
		func(ops []op) string {
			engine, payout, recorder, err := run(ops, rates)
			if err != nil {
				return err.Error()
			}
			s, err := stateOf(engine)
			if err != nil {
				return err.Error()
			}

			var gross, net uint64
			for _, e := range recorder.recorded() {
				if accrued, ok := e.(staking.RewardsAccrued); ok {
					gross += accrued.Accrual.Gross
					net += accrued.Accrual.Net
				}
			}
			var unclaimed, paid, commission uint64
			for _, p := range s.Positions {
				unclaimed += p.Unclaimed
			}
			for _, tr := range payout.paid() {
				paid += tr.Amount
			}
			for _, v := range s.Validators {
				commission += v.CommissionEarned
			}

			if net != unclaimed+paid {
				return fmt.Sprintf("accrued %d, unclaimed %d, paid %d", net, unclaimed, paid)
			}
			if gross != net+commission {
				return fmt.Sprintf("gross %d, net %d, commission %d", gross, net, commission)
			}
			return ""
		},
		gen.SliceOf(opGen()),
	))

	properties.Property("identical inputs produce identical balances", prop.ForAll(
		func(ops []op) string {
			first, firstPayout, _, err := run(ops, rates)
			if err != nil {
				return err.Error()
			}
			second, secondPayout, _, err := run(ops, rates)
			if err != nil {
				return err.Error()
			}

			a, err := stateOf(first)
			if err != nil {
				return err.Error()
			}
			b, err := stateOf(second)
			if err != nil {
				return err.Error()
			}
			if !reflect.DeepEqual(a, b) {
				return fmt.Sprintf("states diverged:\n%+v\n%+v", a, b)
			}
			if len(firstPayout.paid()) != len(secondPayout.paid()) {
				return "payouts diverged"
			}
			return ""
		},
		gen.SliceOf(opGen()),
	))

	properties.TestingRun(t)
}
