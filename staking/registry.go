package staking

import (
	"context"
	"fmt"
)

// RegisterValidator adds an active validator with no stake at checkpoint zero
func (e *Engine) RegisterValidator(ctx context.Context, id ValidatorID, commissionBps uint16) (Validator, error) {
	if id == "" {
		return Validator{}, fmt.Errorf("%w: empty validator id", ErrInvalidID)
	}
	if commissionBps > MaxCommissionBps {
		return Validator{}, fmt.Errorf("%w: %d bps exceeds %d", ErrInvalidCommission, commissionBps, MaxCommissionBps)
	}

	// the id is reserved while the registration is persisted so lookups of
	// other validators are not held up by the store
	e.mu.Lock()
	_, exists := e.validators[id]
	_, pending := e.registering[id]
	if exists || pending {
		e.mu.Unlock()
		return Validator{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	e.registering[id] = struct{}{}
	e.mu.Unlock()

	v := Validator{
		ID:            id,
		Status:        StatusActive,
		CommissionBps: commissionBps,
		RegisteredAt:  e.clock.Now(),
	}
	err := e.commit(ctx, Changeset{Validators: []Validator{v}})

	e.mu.Lock()
	delete(e.registering, id)
	if err == nil {
		e.validators[id] = newValidatorState(v)
	}
	e.mu.Unlock()
	if err != nil {
		return Validator{}, err
	}

	e.observe(ValidatorRegistered{Validator: id, CommissionBps: commissionBps, At: v.RegisteredAt})
	return v, nil
}

// Activate marks the validator as eligible for new delegations
func (e *Engine) Activate(ctx context.Context, id ValidatorID) (Validator, error) {
	return e.SetValidatorStatus(ctx, id, StatusActive)
}

// Deactivate stops new delegations to the validator. Existing positions keep
// their stake and can still be undelegated and claimed.
func (e *Engine) Deactivate(ctx context.Context, id ValidatorID) (Validator, error) {
	return e.SetValidatorStatus(ctx, id, StatusInactive)
}

// SetValidatorStatus toggles the validator status. Setting the current status is a no-op.
func (e *Engine) SetValidatorStatus(ctx context.Context, id ValidatorID, status Status) (Validator, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Validator{}, err
	}

	vs, err := e.lookup(id)
	if err != nil {
		return Validator{}, err
	}

	// keeps the persisted row from racing with an accrual pass
	vs.barrier.RLock()
	defer vs.barrier.RUnlock()

	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.v.Status == status {
		return vs.v, nil
	}

	staged := vs.v
	staged.Status = status
	if err := e.commit(ctx, Changeset{Validators: []Validator{staged}}); err != nil {
		return Validator{}, err
	}
	vs.v.Status = status

	e.observe(ValidatorStatusChanged{Validator: id, Status: status, At: e.clock.Now()})
	return vs.v, nil
}

// reserveCredit holds back room for a credit so concurrent delegations cannot
// overflow the aggregate between persisting and applying their change
func (vs *validatorState) reserveCredit(amount uint64) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	pending, ok := addChecked(vs.reserved, amount)
	if ok {
		_, ok = addChecked(vs.v.TotalStake, pending)
	}
	if !ok {
		return fmt.Errorf("%w: total stake of %s overflows", ErrInvalidAmount, vs.v.ID)
	}
	vs.reserved = pending
	return nil
}

// cancelCredit drops a reservation whose change was not persisted
func (vs *validatorState) cancelCredit(amount uint64) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.reserved -= amount
}

// creditStake turns a reservation into stake. Only the ledger calls it, with the
// position lock held and after the change has been persisted.
func (vs *validatorState) creditStake(amount uint64) uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	vs.reserved -= amount
	vs.v.TotalStake += amount
	return vs.v.TotalStake
}

// debitStake subtracts from the validator aggregate
func (vs *validatorState) debitStake(amount uint64) (uint64, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if amount > vs.v.TotalStake {
		return 0, fmt.Errorf("%w: validator %s holds %d, debit %d", ErrInsufficientStake, vs.v.ID, vs.v.TotalStake, amount)
	}
	vs.v.TotalStake -= amount
	return vs.v.TotalStake, nil
}

// addCommission records commission withheld outside of an accrual pass
func (vs *validatorState) addCommission(amount uint64) {
	if amount == 0 {
		return
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.v.CommissionEarned += amount
}
