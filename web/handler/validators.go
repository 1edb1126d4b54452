package handler

import (
	"net/http"

	"github.com/screwyprof/stakeledger/pkg/httpkit"
	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/web/api"
	"github.com/screwyprof/stakeledger/web/handler/bind"
	"github.com/screwyprof/stakeledger/web/ledger"
)

const (
	RegisterValidatorRoute = http.MethodPost + " " + "/v1/validators"
	ListValidatorsRoute    = http.MethodGet + " " + "/v1/validators"
	GetValidatorRoute      = http.MethodGet + " " + "/v1/validators/{id}"
	SetStatusRoute         = http.MethodPut + " " + "/v1/validators/{id}/status"
	AdvanceCheckpointRoute = http.MethodPost + " " + "/v1/validators/{id}/checkpoints"
)

// Validators serves the registry and the operator checkpoint trigger
type Validators struct {
	registry ledger.Registry
	guard    guard
}

func NewValidators(registry ledger.Registry, auth Authenticator) *Validators {
	return &Validators{
		registry: registry,
		guard:    guard{auth: auth},
	}
}

func (h *Validators) AddRoutes(m *http.ServeMux) {
	m.Handle(RegisterValidatorRoute, h.guard.operator(h.Register))
	m.Handle(ListValidatorsRoute, httpkit.HandlerFunc(h.List))
	m.Handle(GetValidatorRoute, httpkit.HandlerFunc(h.Get))
	m.Handle(SetStatusRoute, h.guard.operator(h.SetStatus))
	m.Handle(AdvanceCheckpointRoute, h.guard.operator(h.AdvanceCheckpoint))
}

func (h *Validators) Register(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.RegisterValidatorRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	v, err := h.registry.RegisterValidator(r.Context(), staking.ValidatorID(req.ID), req.CommissionBps)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	w.Header().Set("Location", "/v1/validators/"+string(v.ID))
	return httpkit.JSONStatus(http.StatusCreated, bind.ValidatorResponse(v))
}

func (h *Validators) List(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(bind.ValidatorsResponse(h.registry.ListValidators(r.Context())))
}

func (h *Validators) Get(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	v, err := h.registry.GetValidator(r.Context(), validatorParam(r))
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.ValidatorResponse(v))
}

func (h *Validators) SetStatus(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	status, err := bind.StatusRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	v, err := h.registry.SetValidatorStatus(r.Context(), validatorParam(r), status)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.ValidatorResponse(v))
}

func (h *Validators) AdvanceCheckpoint(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	accrual, err := h.registry.AdvanceCheckpoint(r.Context(), validatorParam(r))
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.AccrualResponse(accrual))
}

func validatorParam(r *http.Request) staking.ValidatorID {
	return staking.ValidatorID(r.PathValue("id"))
}
