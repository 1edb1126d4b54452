package handler

import (
	"fmt"
	"net/http"

	"github.com/screwyprof/stakeledger/pkg/httpkit"
	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/web/api"
	"github.com/screwyprof/stakeledger/web/handler/bind"
	"github.com/screwyprof/stakeledger/web/ledger"
)

const (
	ListPeriodsRoute = http.MethodGet + " " + "/v1/validators/{id}/periods"
	ListClaimsRoute  = http.MethodGet + " " + "/v1/claims"
)

// History serves the persisted accrual and claim audit trail
type History struct {
	finder ledger.History
	guard  guard
}

func NewHistory(finder ledger.History, auth Authenticator) *History {
	return &History{
		finder: finder,
		guard:  guard{auth: auth},
	}
}

func (h *History) AddRoutes(m *http.ServeMux) {
	m.Handle(ListPeriodsRoute, httpkit.HandlerFunc(h.Periods))
	m.Handle(ListClaimsRoute, h.guard.authenticated(h.Claims))
}

func (h *History) Periods(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	window, err := bind.WindowRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	validator := validatorParam(r)
	page, err := ledger.Fetch(window, func(offset, limit uint64) ([]staking.PeriodRecord, bool, error) {
		return h.finder.FindPeriods(r.Context(), validator, offset, limit)
	})
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	setPaginationLinks(w, page, r.URL)
	return httpkit.JSON(bind.PeriodsResponse(page.Items))
}

// Claims lists the caller's own claims. Operators may list anyone's.
func (h *History) Claims(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.ClaimsRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	window, err := ledger.NewWindow(req.Page, req.PerPage)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	caller := callerOf(r)
	filter := staking.ClaimFilter{
		Delegator: staking.DelegatorID(req.Delegator),
		Validator: staking.ValidatorID(req.Validator),
	}
	if !caller.Operator() {
		if req.Delegator != "" && req.Delegator != caller.ID {
			return httpkit.JsonError(api.Forbidden(fmt.Errorf("%w: claims of %s", api.ErrForbidden, req.Delegator)))
		}
		filter.Delegator = staking.DelegatorID(caller.ID)
	}

	page, err := ledger.Fetch(window, func(offset, limit uint64) ([]staking.Claim, bool, error) {
		return h.finder.FindClaims(r.Context(), filter, offset, limit)
	})
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	setPaginationLinks(w, page, r.URL)
	return httpkit.JSON(bind.ClaimsResponse(page.Items))
}
