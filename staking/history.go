package staking

// ClaimFilter narrows a claim history query; zero fields match everything
type ClaimFilter struct {
	Delegator DelegatorID
	Validator ValidatorID
}
