package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/screwyprof/stakeledger/pkg/identity"
	"github.com/screwyprof/stakeledger/staking"
)

// Sentinel errors for error classification
var (
	ErrBadRequest          = errors.New(http.StatusText(http.StatusBadRequest))
	ErrForbidden           = errors.New("operator role required")
	ErrInternalServerError = errors.New(http.StatusText(http.StatusInternalServerError))
)

// Error represents a structured API error response
type Error struct {
	cause    error  // The original error (for logging/debugging)
	message  string // Safe user-facing message
	httpCode int    // HTTP status code (also used as API error code)
}

// HTTPCode returns the HTTP status code for this error
func (e *Error) HTTPCode() int {
	return e.httpCode
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.message
}

// Unwrap returns the underlying cause for error unwrapping
func (e *Error) Unwrap() error {
	return e.cause
}

// Is implements error checking for sentinel errors
func (e *Error) Is(target error) bool {
	return errors.Is(e.cause, target)
}

// Cause returns the original error for logging purposes
func (e *Error) Cause() error {
	return e.cause
}

// MarshalJSON implements json.Marshaler interface
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"code":    e.httpCode,
		"message": e.message,
	})
}

// Constructor functions for different error types

// exposed builds a 4xx error whose cause is safe to show
func exposed(cause error, code int) *Error {
	return &Error{cause: cause, message: cause.Error(), httpCode: code}
}

// hidden builds an error that only exposes the status text
func hidden(cause error, code int) *Error {
	return &Error{cause: cause, message: http.StatusText(code), httpCode: code}
}

func BadRequest(cause error) *Error   { return exposed(cause, http.StatusBadRequest) }
func NotFound(cause error) *Error     { return exposed(cause, http.StatusNotFound) }
func Conflict(cause error) *Error     { return exposed(cause, http.StatusConflict) }
func Unauthorized(cause error) *Error { return hidden(cause, http.StatusUnauthorized) }
func Forbidden(cause error) *Error    { return exposed(cause, http.StatusForbidden) }

func BadGateway(cause error) *Error {
	return &Error{
		cause:    cause,
		message:  "payout failed, the reward stays claimable",
		httpCode: http.StatusBadGateway,
	}
}

// GatewayTimeout reports a payout whose outcome is unknown. The reward is not
// claimable again until the claim is reconciled.
func GatewayTimeout(cause error) *Error {
	return &Error{
		cause:    cause,
		message:  "payout outcome unknown, the claim is held for reconciliation",
		httpCode: http.StatusGatewayTimeout,
	}
}

func ServiceUnavailable(cause error) *Error { return hidden(cause, http.StatusServiceUnavailable) }

func InternalServerError(cause error) *Error {
	return hidden(cause, http.StatusInternalServerError) // Never expose internal error details
}

// classification maps engine sentinels to constructors, first match wins
var classification = []struct {
	target error
	build  func(error) *Error
}{
	{staking.ErrNotFound, NotFound},
	{staking.ErrInvalidAmount, BadRequest},
	{staking.ErrInvalidCommission, BadRequest},
	{staking.ErrInvalidID, BadRequest},
	{staking.ErrInvalidStatus, BadRequest},
	{staking.ErrValidatorNotActive, Conflict},
	{staking.ErrInsufficientStake, Conflict},
	{staking.ErrAlreadyRegistered, Conflict},
	{staking.ErrNothingToClaim, Conflict},
	{staking.ErrRewardOverflow, Conflict},
	{staking.ErrPayoutUnconfirmed, GatewayTimeout},
	{staking.ErrPayoutFailed, BadGateway},
	{staking.ErrEmissionUnavailable, ServiceUnavailable},
	{identity.ErrMissingToken, Unauthorized},
	{identity.ErrInvalidToken, Unauthorized},
}

// Wrap transforms any error into a safe API error
// If the error is already an API error, it returns it unchanged
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	// Don't double-wrap API errors
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for _, c := range classification {
		if errors.Is(err, c.target) {
			return c.build(err)
		}
	}
	return InternalServerError(err)
}
