package port

import (
	"context"

	"chainarb/internal/domain/model"
)

// Transport is the abstracted cross-chain messaging layer. Production
// talks to a relay over HTTP; tests use the in-memory fake.
type Transport interface {
	// EstimateFees quotes the cost of sending a plan. Advisory; the
	// consumed fee is reconciled from the final status.
	EstimateFees(ctx context.Context, plan *model.ExecutionPlan) (*model.FeeEstimate, error)

	// Send submits the plan and returns an opaque message id. Errors
	// wrapping arberr.ErrSendTransient are safe to retry; anything else
	// after acceptance is terminal.
	Send(ctx context.Context, plan *model.ExecutionPlan) (string, error)

	// Status returns the network's view of a message. Errors wrapping
	// arberr.ErrStatusUnknown mean "re-poll later", not failure.
	Status(ctx context.Context, messageID string) (*model.CrossChainTransaction, error)
}
