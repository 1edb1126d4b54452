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
	ListPositionsRoute = http.MethodGet + " " + "/v1/validators/{id}/positions"
	GetPositionRoute   = http.MethodGet + " " + "/v1/validators/{id}/positions/{delegator}"
	DelegateRoute      = http.MethodPost + " " + "/v1/validators/{id}/delegations"
	UndelegateRoute    = http.MethodPost + " " + "/v1/validators/{id}/undelegations"
	ClaimRoute         = http.MethodPost + " " + "/v1/validators/{id}/claims"
)

// Positions serves the delegation ledger. Writes act on behalf of the
// authenticated caller.
type Positions struct {
	positions ledger.Positions
	guard     guard
}

func NewPositions(positions ledger.Positions, auth Authenticator) *Positions {
	return &Positions{
		positions: positions,
		guard:     guard{auth: auth},
	}
}

func (h *Positions) AddRoutes(m *http.ServeMux) {
	m.Handle(ListPositionsRoute, httpkit.HandlerFunc(h.List))
	m.Handle(GetPositionRoute, httpkit.HandlerFunc(h.Get))
	m.Handle(DelegateRoute, h.guard.authenticated(h.Delegate))
	m.Handle(UndelegateRoute, h.guard.authenticated(h.Undelegate))
	m.Handle(ClaimRoute, h.guard.authenticated(h.Claim))
}

func (h *Positions) List(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	window, err := bind.WindowRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	validator := validatorParam(r)
	page, err := ledger.Fetch(window, func(offset, limit uint64) ([]staking.Position, bool, error) {
		return h.positions.ListPositions(r.Context(), validator, offset, limit)
	})
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	setPaginationLinks(w, page, r.URL)
	return httpkit.JSON(bind.PositionsResponse(page.Items))
}

func (h *Positions) Get(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	p, err := h.positions.GetPosition(r.Context(), staking.DelegatorID(r.PathValue("delegator")), validatorParam(r))
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.PositionResponse(p))
}

func (h *Positions) Delegate(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	amount, err := bind.AmountRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	p, err := h.positions.Delegate(r.Context(), delegatorOf(r), validatorParam(r), amount)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.PositionResponse(p))
}

func (h *Positions) Undelegate(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	amount, err := bind.AmountRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	p, err := h.positions.Undelegate(r.Context(), delegatorOf(r), validatorParam(r), amount)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.PositionResponse(p))
}

func (h *Positions) Claim(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	claim, err := h.positions.ClaimRewards(r.Context(), delegatorOf(r), validatorParam(r))
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}
	return httpkit.JSON(bind.ClaimResponse(claim))
}

func delegatorOf(r *http.Request) staking.DelegatorID {
	return staking.DelegatorID(callerOf(r).ID)
}
