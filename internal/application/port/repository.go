package port

import (
	"context"

	"chainarb/internal/domain/model"
)

type Repository interface {
	// Observation operations
	UpsertLatestObservation(ctx context.Context, obs *model.PriceObservation) error

	// Opportunity operations
	SaveOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error

	// Transaction operations
	SaveTransaction(ctx context.Context, tx *model.CrossChainTransaction) error
	UpdateTransaction(ctx context.Context, tx *model.CrossChainTransaction) error
	GetTransaction(ctx context.Context, messageID string) (*model.CrossChainTransaction, error)
	ListOpenTransactions(ctx context.Context) ([]*model.CrossChainTransaction, error)

	// Trade operations
	SaveTrade(ctx context.Context, trade *model.TradeResult) error

	// Connection management
	Close() error
}
