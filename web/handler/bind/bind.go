package bind

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/web/api"
	"github.com/screwyprof/stakeledger/web/ledger"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 16

// Sentinel errors for request binding
var (
	ErrInvalidBody    = errors.New("invalid request body")
	ErrInvalidAmount  = errors.New("invalid amount parameter")
	ErrInvalidPage    = errors.New("invalid page parameter")
	ErrInvalidPerPage = errors.New("invalid per_page parameter")
	ErrInvalidStatus  = errors.New("invalid status parameter")

	// Specific amount validation errors
	ErrAmountMissing    = errors.New("amount is required")
	ErrAmountNotNumeric = errors.New("amount must be a non-negative integer that fits 64 bits")

	// Specific page validation errors
	ErrPageNotNumeric  = errors.New("page must be numeric")
	ErrPageNotPositive = errors.New("page must be positive")

	// Specific per_page validation errors
	ErrPerPageNotNumeric  = errors.New("per_page must be numeric")
	ErrPerPageNotPositive = errors.New("per_page must be positive")
	ErrPerPageTooLarge    = errors.New("per_page must be between 1 and 100")
)

// RegisterValidatorRequest binds the registration body
func RegisterValidatorRequest(r *http.Request) (api.RegisterValidatorRequest, error) {
	var req api.RegisterValidatorRequest
	return req, decode(r, &req)
}

// StatusRequest binds the status body to an engine status
func StatusRequest(r *http.Request) (staking.Status, error) {
	var req api.SetStatusRequest
	if err := decode(r, &req); err != nil {
		return "", err
	}
	status, err := staking.ParseStatus(req.Status)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	return status, nil
}

// AmountRequest binds a {"amount": "<decimal>"} body. Zero is passed through so the
// engine reports it.
func AmountRequest(r *http.Request) (uint64, error) {
	var req api.AmountRequest
	if err := decode(r, &req); err != nil {
		return 0, err
	}
	if req.Amount == "" {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, ErrAmountMissing)
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, ErrAmountNotNumeric)
	}
	return amount, nil
}

// WindowRequest binds page and per_page with defaults
func WindowRequest(r *http.Request) (ledger.Window, error) {
	req, err := pageRequest(r)
	if err != nil {
		return ledger.Window{}, err
	}
	return ledger.NewWindow(req.Page, req.PerPage)
}

// ClaimsRequest binds the claim history query
func ClaimsRequest(r *http.Request) (api.ClaimsRequest, error) {
	page, err := pageRequest(r)
	if err != nil {
		return api.ClaimsRequest{}, err
	}
	query := r.URL.Query()
	return api.ClaimsRequest{
		PageRequest: page,
		Delegator:   query.Get("delegator"),
		Validator:   query.Get("validator"),
	}, nil
}

func pageRequest(r *http.Request) (api.PageRequest, error) {
	req := api.PageRequest{
		Page:    ledger.DefaultPage,
		PerPage: ledger.DefaultPerPage,
	}

	query := r.URL.Query()

	if pageParam := query.Get("page"); pageParam != "" {
		page, err := parsePageNumber(pageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPage, err)
		}
		req.Page = page
	}

	if perPageParam := query.Get("per_page"); perPageParam != "" {
		perPage, err := parsePerPageLimit(perPageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPerPage, err)
		}
		req.PerPage = perPage
	}

	return req, nil
}

// parsePageNumber validates that the page parameter is a positive integer
func parsePageNumber(pageParam string) (uint64, error) {
	page, err := strconv.ParseUint(pageParam, 10, 64)
	if err != nil {
		return 0, ErrPageNotNumeric
	}
	if page == 0 {
		return 0, ErrPageNotPositive
	}
	return page, nil
}

// parsePerPageLimit validates that the per_page parameter is within acceptable limits
func parsePerPageLimit(perPageParam string) (uint64, error) {
	perPage, err := strconv.ParseUint(perPageParam, 10, 64)
	if err != nil {
		return 0, ErrPerPageNotNumeric
	}
	if perPage == 0 {
		return 0, ErrPerPageNotPositive
	}
	if perPage > ledger.MaxPerPage {
		return 0, ErrPerPageTooLarge
	}
	return perPage, nil
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}

// Response binders

func ValidatorResponse(v staking.Validator) api.Validator {
	return api.Validator{
		ID:               string(v.ID),
		Status:           string(v.Status),
		CommissionBps:    v.CommissionBps,
		TotalStake:       formatUint(v.TotalStake),
		Checkpoint:       formatUint(v.Checkpoint),
		LastRate:         formatUint(uint64(v.LastRate)),
		CommissionEarned: formatUint(v.CommissionEarned),
		RegisteredAt:     v.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

func ValidatorsResponse(validators []staking.Validator) api.ValidatorsResponse {
	return api.ValidatorsResponse{Data: mapSlice(validators, ValidatorResponse)}
}

func PositionResponse(p staking.Position) api.Position {
	return api.Position{
		Delegator:   string(p.Delegator),
		Validator:   string(p.Validator),
		Staked:      formatUint(p.Staked),
		Unclaimed:   formatUint(p.Unclaimed),
		LastClaimed: formatUint(p.LastClaimed),
		LastAccrued: formatUint(p.LastAccrued),
	}
}

func PositionsResponse(positions []staking.Position) api.PositionsResponse {
	return api.PositionsResponse{Data: mapSlice(positions, PositionResponse)}
}

func AccrualResponse(a staking.Accrual) api.Accrual {
	return api.Accrual{
		Validator:  string(a.Validator),
		Checkpoint: formatUint(a.Checkpoint),
		Rate:       formatUint(uint64(a.Rate)),
		Gross:      formatUint(a.Gross),
		Net:        formatUint(a.Net),
		Commission: formatUint(a.Commission),
		Positions:  a.Positions,
	}
}

func PeriodsResponse(periods []staking.PeriodRecord) api.PeriodsResponse {
	return api.PeriodsResponse{Data: mapSlice(periods, func(p staking.PeriodRecord) api.Period {
		return api.Period{
			Accrual: AccrualResponse(staking.Accrual{
				Validator:  p.Validator,
				Checkpoint: p.Checkpoint,
				Rate:       p.Rate,
				Gross:      p.Gross,
				Net:        p.Net,
				Commission: p.Commission,
				Positions:  p.Positions,
			}),
			AccruedAt: p.AccruedAt.UTC().Format(time.RFC3339),
		}
	})}
}

func ClaimResponse(c staking.Claim) api.Claim {
	return api.Claim{
		ID:         c.ID.String(),
		Delegator:  string(c.Delegator),
		Validator:  string(c.Validator),
		Amount:     formatUint(c.Amount),
		Checkpoint: formatUint(c.Checkpoint),
		ClaimedAt:  c.ClaimedAt.UTC().Format(time.RFC3339),
		Voided:     c.Voided,
	}
}

func ClaimsResponse(claims []staking.Claim) api.ClaimsResponse {
	return api.ClaimsResponse{Data: mapSlice(claims, ClaimResponse)}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
