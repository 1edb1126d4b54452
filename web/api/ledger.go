package api

// Amounts are rendered as decimal strings so that uint64 values survive JSON
// clients with float64 numbers.

// RegisterValidatorRequest is the body of POST /v1/validators
type RegisterValidatorRequest struct {
	ID            string `json:"id"`
	CommissionBps uint16 `json:"commission_bps"`
}

// SetStatusRequest is the body of PUT /v1/validators/{id}/status
type SetStatusRequest struct {
	Status string `json:"status"`
}

// AmountRequest is the body of delegation and undelegation requests
type AmountRequest struct {
	Amount string `json:"amount"`
}

// PageRequest represents the pagination query parameters
type PageRequest struct {
	Page    uint64 `query:"page"`     // Page number for pagination (default: 1)
	PerPage uint64 `query:"per_page"` // Number of items per page (default: 50, max: 100)
}

// ClaimsRequest represents the query parameters for GET /v1/claims
type ClaimsRequest struct {
	PageRequest
	Delegator string `query:"delegator"` // operators only
	Validator string `query:"validator"`
}

// Validator represents a registry entry in API responses
type Validator struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CommissionBps    uint16 `json:"commission_bps"`
	TotalStake       string `json:"total_stake"`
	Checkpoint       string `json:"checkpoint"`
	LastRate         string `json:"last_rate"`
	CommissionEarned string `json:"commission_earned"`
	RegisteredAt     string `json:"registered_at"`
}

// ValidatorsResponse represents the response of GET /v1/validators
type ValidatorsResponse struct {
	Data []Validator `json:"data"`
}

// Position represents a delegation position in API responses
type Position struct {
	Delegator   string `json:"delegator"`
	Validator   string `json:"validator"`
	Staked      string `json:"staked"`
	Unclaimed   string `json:"unclaimed"`
	LastClaimed string `json:"last_claimed"`
	LastAccrued string `json:"last_accrued"`
}

// PositionsResponse represents a page of positions
type PositionsResponse struct {
	Data []Position `json:"data"`
}

// Accrual represents the summary of a checkpoint advance
type Accrual struct {
	Validator  string `json:"validator"`
	Checkpoint string `json:"checkpoint"`
	Rate       string `json:"rate"`
	Gross      string `json:"gross"`
	Net        string `json:"net"`
	Commission string `json:"commission"`
	Positions  int    `json:"positions"`
}

// Period represents an accrual pass in the history
type Period struct {
	Accrual
	AccruedAt string `json:"accrued_at"`
}

// PeriodsResponse represents a page of accrual periods
type PeriodsResponse struct {
	Data []Period `json:"data"`
}

// Claim represents a settlement
type Claim struct {
	ID         string `json:"id"`
	Delegator  string `json:"delegator"`
	Validator  string `json:"validator"`
	Amount     string `json:"amount"`
	Checkpoint string `json:"checkpoint"`
	ClaimedAt  string `json:"claimed_at"`
	Voided     bool   `json:"voided"`
}

// ClaimsResponse represents a page of claims
type ClaimsResponse struct {
	Data []Claim `json:"data"`
}
