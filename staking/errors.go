package staking

import "errors"

// Caller errors. None of them leave a state change behind.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidID          = errors.New("invalid identifier")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCommission  = errors.New("invalid commission rate")
	ErrInvalidStatus      = errors.New("invalid validator status")
	ErrValidatorNotActive = errors.New("validator not active")
	ErrInsufficientStake  = errors.New("insufficient stake")
	ErrNothingToClaim     = errors.New("nothing to claim")
	ErrAlreadyRegistered  = errors.New("validator already registered")
)

// Collaborator and integrity errors
var (
	ErrPayoutFailed        = errors.New("payout failed")
	ErrPayoutUnconfirmed   = errors.New("payout outcome unknown")
	ErrPersistenceFailed   = errors.New("persisting state failed")
	ErrEmissionUnavailable = errors.New("emission rate unavailable")
	ErrRewardOverflow      = errors.New("reward exceeds representable range")
	ErrCorruptState        = errors.New("corrupt engine state")
)
