package handler

import (
	"net/http"

	"github.com/screwyprof/stakeledger/pkg/httpkit"
	"github.com/screwyprof/stakeledger/pkg/identity"
	"github.com/screwyprof/stakeledger/web/api"
)

// Authenticator resolves the caller of a request
type Authenticator interface {
	Authenticate(r *http.Request) (identity.Caller, error)
}

// guard wraps handlers with authentication and role checks
type guard struct {
	auth Authenticator
}

// authenticated rejects anonymous requests and stores the caller in the context
func (g guard) authenticated(next httpkit.HandlerFunc) httpkit.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
		caller, err := g.auth.Authenticate(r)
		if err != nil {
			return httpkit.JsonError(api.Wrap(err))
		}
		httpkit.SetCaller(r.Context(), caller.ID)
		return next(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
	}
}

// operator only lets operators through
func (g guard) operator(next httpkit.HandlerFunc) httpkit.HandlerFunc {
	return g.authenticated(func(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
		if !callerOf(r).Operator() {
			return httpkit.JsonError(api.Forbidden(api.ErrForbidden))
		}
		return next(w, r)
	})
}

func callerOf(r *http.Request) identity.Caller {
	caller, _ := identity.FromContext(r.Context())
	return caller
}
