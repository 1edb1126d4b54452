package staking

import (
	"fmt"

	"github.com/holiman/uint256"
)

// RateDenominator is the fixed-point scale of Rate: a Rate of RateDenominator pays
// 100% of the staked amount per period.
const RateDenominator = 1_000_000_000

// Rate is a per-period reward rate in parts per RateDenominator
type Rate uint64

// RateFromPercent builds a rate from a whole percentage
func RateFromPercent(pct uint64) Rate {
	return Rate(pct * RateDenominator / 100)
}

var (
	rateDenominator = uint256.NewInt(RateDenominator)
	bpsDenominator  = uint256.NewInt(MaxCommissionBps)
)

// Reward is the outcome of a reward computation for one position
type Reward struct {
	Gross      uint64
	Net        uint64
	Commission uint64
}

// ComputeReward returns the reward earned by staked over periods at rate, with the
// validator commission withheld.
//
//	gross = floor(staked * rate * periods / RateDenominator)
//	net   = floor(gross * (10000 - commissionBps) / 10000)
//
// Intermediate products are evaluated in 256 bits and each division rounds down,
// so the result is identical on every replica.
func ComputeReward(staked uint64, rate Rate, periods uint64, commissionBps uint16) (Reward, error) {
	if commissionBps > MaxCommissionBps {
		return Reward{}, fmt.Errorf("%w: %d bps", ErrInvalidCommission, commissionBps)
	}
	if staked == 0 || rate == 0 || periods == 0 {
		return Reward{}, nil
	}

	var x, y, gross uint256.Int
	x.SetUint64(staked)
	y.SetUint64(uint64(rate))
	y.Mul(&y, uint256.NewInt(periods)) // fits in 128 bits

	// staked * rate * periods fits in 192 bits, no overflow possible here
	if _, overflow := gross.MulDivOverflow(&x, &y, rateDenominator); overflow {
		return Reward{}, ErrRewardOverflow
	}
	if !gross.IsUint64() {
		return Reward{}, fmt.Errorf("%w: gross %s", ErrRewardOverflow, gross.Dec())
	}

	var keep, net uint256.Int
	keep.SetUint64(uint64(MaxCommissionBps - commissionBps))
	net.MulDivOverflow(&gross, &keep, bpsDenominator)

	g, n := gross.Uint64(), net.Uint64()
	return Reward{Gross: g, Net: n, Commission: g - n}, nil
}

// addChecked adds two balances, failing instead of wrapping around
func addChecked(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}
