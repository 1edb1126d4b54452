package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/screwyprof/stakeledger/pkg/payout"
	"github.com/screwyprof/stakeledger/staking"
)

// payoutVia adapts the transfer service client to the engine payout primitive.
// The claim id is the idempotency reference.
func payoutVia(client *payout.Client) staking.Payout {
	return staking.PayoutFunc(func(ctx context.Context, t staking.Transfer) error {
		err := client.Send(ctx, payout.Request{
			Reference: t.ClaimID.String(),
			Recipient: string(t.To),
			Amount:    t.Amount,
		})
		if errors.Is(err, payout.ErrUnconfirmed) {
			return fmt.Errorf("%w: %w", staking.ErrPayoutUnconfirmed, err)
		}
		return err
	})
}
