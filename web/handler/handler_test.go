package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/stakeledger/pkg/identity"
	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/web/api"
	"github.com/screwyprof/stakeledger/web/handler"
)

var (
	secret        = []byte("handler-test-secret")
	operator      = identity.Caller{ID: "ops", Role: identity.RoleOperator}
	alice         = identity.Caller{ID: "tz1alice", Role: identity.RoleDelegator}
	bob           = identity.Caller{ID: "tz1bob", Role: identity.RoleDelegator}
	errPayoutDown = errors.New("payout service down")
)

// TestValidatorsHandler tests the registry routes
func TestValidatorsHandler(t *testing.T) {
	t.Parallel()

	t.Run("it registers validators for operators", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators", operator, `{"id":"tz1v","commission_bps":500}`)
		v := decode[api.Validator](t, resp)

		// Assert
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "/v1/validators/tz1v", resp.Header.Get("Location"))
		assert.Equal(t, "tz1v", v.ID)
		assert.Equal(t, "active", v.Status)
		assert.Equal(t, uint16(500), v.CommissionBps)
		assert.Equal(t, "0", v.TotalStake)
	})

	t.Run("it requires a token for governance routes", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators", identity.Caller{}, `{"id":"tz1v","commission_bps":500}`)

		// Assert
		assertError(t, resp, http.StatusUnauthorized, "Unauthorized")
	})

	t.Run("it forbids governance routes to delegators", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators", alice, `{"id":"tz1v","commission_bps":500}`)

		// Assert
		assertError(t, resp, http.StatusForbidden, "operator role required")
	})

	t.Run("it rejects commissions above 100%", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators", operator, `{"id":"tz1v","commission_bps":10001}`)

		// Assert
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("it reports duplicate registrations as conflicts", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 500)

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators", operator, `{"id":"tz1v","commission_bps":100}`)

		// Assert
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("it lists and reads validators anonymously", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1b", 100)
		srv.register(t, "tz1a", 200)

		// Act
		list := decode[api.ValidatorsResponse](t, srv.do(t, http.MethodGet, "/v1/validators", identity.Caller{}, ""))
		one := srv.do(t, http.MethodGet, "/v1/validators/tz1a", identity.Caller{}, "")
		missing := srv.do(t, http.MethodGet, "/v1/validators/tz1nobody", identity.Caller{}, "")

		// Assert
		require.Len(t, list.Data, 2)
		assert.Equal(t, "tz1a", list.Data[0].ID)
		assert.Equal(t, http.StatusOK, one.StatusCode)
		assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	})

	t.Run("it changes the status and advances checkpoints", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 1000)
		srv.delegate(t, alice, "tz1v", "1000")

		// Act
		accrual := decode[api.Accrual](t, srv.do(t, http.MethodPost, "/v1/validators/tz1v/checkpoints", operator, ""))
		status := decode[api.Validator](t, srv.do(t, http.MethodPut, "/v1/validators/tz1v/status", operator, `{"status":"inactive"}`))
		invalid := srv.do(t, http.MethodPut, "/v1/validators/tz1v/status", operator, `{"status":"paused"}`)

		// Assert
		assert.Equal(t, "1", accrual.Checkpoint)
		assert.Equal(t, "100", accrual.Gross)
		assert.Equal(t, "90", accrual.Net)
		assert.Equal(t, "10", accrual.Commission)
		assert.Equal(t, "inactive", status.Status)
		assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
	})
}

// TestPositionsHandler tests delegation, undelegation and claims
func TestPositionsHandler(t *testing.T) {
	t.Parallel()

	t.Run("it delegates on behalf of the caller", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 0)

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators/tz1v/delegations", alice, `{"amount":"18446744073709551615"}`)
		p := decode[api.Position](t, resp)

		// Assert
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "tz1alice", p.Delegator)
		assert.Equal(t, "18446744073709551615", p.Staked)
	})

	t.Run("it rejects malformed amounts", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 0)

		testCases := []struct {
			name string
			body string
		}{
			{name: "missing amount", body: `{}`},
			{name: "negative amount", body: `{"amount":"-5"}`},
			{name: "amount above 64 bits", body: `{"amount":"18446744073709551616"}`},
			{name: "numeric json amount", body: `{"amount":5}`},
			{name: "unknown field", body: `{"amount":"5","to":"tz1x"}`},
			{name: "zero amount", body: `{"amount":"0"}`},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				// Act
				resp := srv.do(t, http.MethodPost, "/v1/validators/tz1v/delegations", alice, tc.body)

				// Assert
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		}
	})

	t.Run("it maps engine refusals to statuses", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 0)
		srv.register(t, "tz1off", 0)
		srv.do(t, http.MethodPut, "/v1/validators/tz1off/status", operator, `{"status":"inactive"}`)
		srv.delegate(t, alice, "tz1v", "10")

		// Act
		inactive := srv.do(t, http.MethodPost, "/v1/validators/tz1off/delegations", alice, `{"amount":"1"}`)
		unknown := srv.do(t, http.MethodPost, "/v1/validators/tz1nobody/delegations", alice, `{"amount":"1"}`)
		tooMuch := srv.do(t, http.MethodPost, "/v1/validators/tz1v/undelegations", alice, `{"amount":"11"}`)
		noPosition := srv.do(t, http.MethodPost, "/v1/validators/tz1v/undelegations", bob, `{"amount":"1"}`)
		nothing := srv.do(t, http.MethodPost, "/v1/validators/tz1v/claims", alice, "")

		// Assert
		assertError(t, inactive, http.StatusConflict, "validator not active: tz1off is inactive")
		assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
		assert.Equal(t, http.StatusConflict, tooMuch.StatusCode)
		assert.Equal(t, http.StatusNotFound, noPosition.StatusCode)
		assert.Equal(t, http.StatusConflict, nothing.StatusCode)
	})

	t.Run("it undelegates and claims", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 0)
		srv.delegate(t, alice, "tz1v", "1000")
		srv.do(t, http.MethodPost, "/v1/validators/tz1v/checkpoints", operator, "")

		// Act
		undelegated := decode[api.Position](t, srv.do(t, http.MethodPost, "/v1/validators/tz1v/undelegations", alice, `{"amount":"400"}`))
		claim := decode[api.Claim](t, srv.do(t, http.MethodPost, "/v1/validators/tz1v/claims", alice, ""))

		// Assert
		assert.Equal(t, "600", undelegated.Staked)
		assert.Equal(t, "100", undelegated.Unclaimed)
		assert.Equal(t, "100", claim.Amount)
		assert.Equal(t, "tz1alice", claim.Delegator)
		assert.False(t, claim.Voided)
		_, err := uuid.Parse(claim.ID)
		assert.NoError(t, err)
	})

	t.Run("it reports payout failures as bad gateway and keeps the reward", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, func(context.Context, staking.Transfer) error { return errPayoutDown })
		srv.register(t, "tz1v", 0)
		srv.delegate(t, alice, "tz1v", "1000")
		srv.do(t, http.MethodPost, "/v1/validators/tz1v/checkpoints", operator, "")

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators/tz1v/claims", alice, "")
		p := decode[api.Position](t, srv.do(t, http.MethodGet, "/v1/validators/tz1v/positions/tz1alice", identity.Caller{}, ""))

		// Assert
		assertError(t, resp, http.StatusBadGateway, "payout failed, the reward stays claimable")
		assert.Equal(t, "100", p.Unclaimed)
	})

	t.Run("it reports unconfirmed payouts as gateway timeout and holds the reward", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, func(context.Context, staking.Transfer) error {
			return fmt.Errorf("%w: deadline exceeded", staking.ErrPayoutUnconfirmed)
		})
		srv.register(t, "tz1v", 0)
		srv.delegate(t, alice, "tz1v", "1000")
		srv.do(t, http.MethodPost, "/v1/validators/tz1v/checkpoints", operator, "")

		// Act
		resp := srv.do(t, http.MethodPost, "/v1/validators/tz1v/claims", alice, "")
		p := decode[api.Position](t, srv.do(t, http.MethodGet, "/v1/validators/tz1v/positions/tz1alice", identity.Caller{}, ""))

		// Assert
		assertError(t, resp, http.StatusGatewayTimeout, "payout outcome unknown, the claim is held for reconciliation")
		assert.Equal(t, "0", p.Unclaimed)
	})

	t.Run("it pages positions with link headers", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.register(t, "tz1v", 0)
		for _, c := range []identity.Caller{alice, bob, {ID: "tz1carol"}} {
			srv.delegate(t, c, "tz1v", "5")
		}

		// Act
		first := srv.do(t, http.MethodGet, "/v1/validators/tz1v/positions?per_page=2", identity.Caller{}, "")
		second := srv.do(t, http.MethodGet, "/v1/validators/tz1v/positions?page=2&per_page=2", identity.Caller{}, "")
		tooLarge := srv.do(t, http.MethodGet, "/v1/validators/tz1v/positions?per_page=101", identity.Caller{}, "")

		// Assert
		assert.Contains(t, first.Header.Get("Link"), `rel="next"`)
		assert.NotContains(t, first.Header.Get("Link"), `rel="prev"`)
		page := decode[api.PositionsResponse](t, first)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "tz1alice", page.Data[0].Delegator)
		assert.Equal(t, "tz1bob", page.Data[1].Delegator)

		assert.Contains(t, second.Header.Get("Link"), `rel="prev"`)
		assert.NotContains(t, second.Header.Get("Link"), `rel="next"`)
		assert.Len(t, decode[api.PositionsResponse](t, second).Data, 1)

		assert.Equal(t, http.StatusBadRequest, tooLarge.StatusCode)
	})
}

// TestHistoryHandler tests the audit trail routes
func TestHistoryHandler(t *testing.T) {
	t.Parallel()

	t.Run("it restricts delegators to their own claims", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)

		// Act
		own := srv.do(t, http.MethodGet, "/v1/claims?validator=tz1v", alice, "")
		others := srv.do(t, http.MethodGet, "/v1/claims?delegator=tz1bob", alice, "")

		// Assert
		assert.Equal(t, http.StatusOK, own.StatusCode)
		assert.Equal(t, staking.ClaimFilter{Delegator: "tz1alice", Validator: "tz1v"}, srv.history.lastFilter())
		assert.Equal(t, http.StatusForbidden, others.StatusCode)
	})

	t.Run("it lets operators read any claims", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.history.claims = []staking.Claim{
			{ID: uuid.New(), Delegator: "tz1bob", Validator: "tz1v", Amount: 7, ClaimedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		}

		// Act
		resp := srv.do(t, http.MethodGet, "/v1/claims?delegator=tz1bob&per_page=1", operator, "")
		claims := decode[api.ClaimsResponse](t, resp)

		// Assert
		assert.Equal(t, staking.ClaimFilter{Delegator: "tz1bob"}, srv.history.lastFilter())
		require.Len(t, claims.Data, 1)
		assert.Equal(t, "7", claims.Data[0].Amount)
		assert.Equal(t, "2026-02-01T00:00:00Z", claims.Data[0].ClaimedAt)
		assert.Contains(t, resp.Header.Get("Link"), "delegator=tz1bob")
	})

	t.Run("it pages accrual periods", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.history.periods = []staking.PeriodRecord{
			{Validator: "tz1v", Checkpoint: 2, Gross: 10, Net: 9, Commission: 1, Positions: 1},
		}

		// Act
		resp := srv.do(t, http.MethodGet, "/v1/validators/tz1v/periods?page=3&per_page=1", identity.Caller{}, "")
		periods := decode[api.PeriodsResponse](t, resp)

		// Assert
		assert.Equal(t, uint64(2), srv.history.lastOffset())
		require.Len(t, periods.Data, 1)
		assert.Equal(t, "2", periods.Data[0].Checkpoint)
		assert.Contains(t, resp.Header.Get("Link"), "page=2")
	})

	t.Run("it hides history failures", func(t *testing.T) {
		t.Parallel()

		// Arrange
		srv := newServer(t, payoutOK)
		srv.history.err = errors.New("relation claims does not exist")

		// Act
		resp := srv.do(t, http.MethodGet, "/v1/claims", alice, "")

		// Assert
		assertError(t, resp, http.StatusInternalServerError, "Internal Server Error")
	})
}

// Test fixtures and helpers

type server struct {
	*httptest.Server
	history *fakeHistory
	signer  *identity.Signer
}

func payoutOK(context.Context, staking.Transfer) error { return nil }

func newServer(t *testing.T, payout staking.PayoutFunc) *server {
	t.Helper()

	engine := staking.NewEngine(staking.DiscardStore{}, payout, staking.FixedRate(staking.RateFromPercent(10)))
	history := &fakeHistory{}
	verifier := identity.NewVerifier(secret, "stakeledger")

	mux := http.NewServeMux()
	handler.NewValidators(engine, verifier).AddRoutes(mux)
	handler.NewPositions(engine, verifier).AddRoutes(mux)
	handler.NewHistory(history, verifier).AddRoutes(mux)

	s := &server{
		Server:  httptest.NewServer(mux),
		history: history,
		signer:  identity.NewSigner(secret, "stakeledger", time.Hour),
	}
	t.Cleanup(s.Close)
	return s
}

// do sends a request as caller; an empty caller ID sends no token
func (s *server) do(t *testing.T, method, path string, caller identity.Caller, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, s.URL+path, reader)
	require.NoError(t, err)

	if caller.ID != "" {
		token, err := s.signer.Sign(caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *server) register(t *testing.T, id string, bps uint16) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/v1/validators", operator, fmt.Sprintf(`{"id":%q,"commission_bps":%d}`, id, bps))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (s *server) delegate(t *testing.T, caller identity.Caller, validator, amount string) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/v1/validators/"+validator+"/delegations", caller, fmt.Sprintf(`{"amount":%q}`, amount))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out), "Response should be valid JSON")
	return out
}

func assertError(t *testing.T, resp *http.Response, code int, message string) {
	t.Helper()
	body := decode[map[string]any](t, resp)
	assert.Equal(t, code, resp.StatusCode)
	assert.Equal(t, float64(code), body["code"])
	assert.Equal(t, message, body["message"])
}

// fakeHistory implements ledger.History and records the last query
type fakeHistory struct {
	claims  []staking.Claim
	periods []staking.PeriodRecord
	err     error

	mu     sync.Mutex
	filter staking.ClaimFilter
	offset uint64
}

func (f *fakeHistory) FindClaims(_ context.Context, filter staking.ClaimFilter, offset, limit uint64) ([]staking.Claim, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter, f.offset = filter, offset
	return f.claims, true, f.err
}

func (f *fakeHistory) FindPeriods(_ context.Context, _ staking.ValidatorID, offset, limit uint64) ([]staking.PeriodRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset = offset
	return f.periods, false, f.err
}

func (f *fakeHistory) lastFilter() staking.ClaimFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

func (f *fakeHistory) lastOffset() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}
