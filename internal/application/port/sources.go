package port

import (
	"context"

	"chainarb/internal/domain/model"
)

// SourceQuote is one raw quote from a single source, before
// cross-validation. Bid/Ask are zero when the venue has no book.
type SourceQuote struct {
	Price  float64
	Bid    float64
	Ask    float64
	Volume float64
}

// HasBidAsk reports whether the venue supplied a two-sided quote.
func (q *SourceQuote) HasBidAsk() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// PriceSource fetches a quote for one asset on one chain.
type PriceSource interface {
	Name() string
	Quality() model.QualityTier
	Quote(ctx context.Context, assetID, chain string) (*SourceQuote, error)
}

// HistorySource returns up to limit historical observations for one
// asset+chain, oldest first.
type HistorySource interface {
	Name() string
	History(ctx context.Context, assetID, chain string, limit int) ([]model.PriceObservation, error)
}

// SentimentSource returns the current market mood readings. Any nil
// field means that reading was unavailable.
type SentimentSource interface {
	Name() string
	FearGreed(ctx context.Context) (*float64, error)
	AssetSentiment(ctx context.Context, assetID string) (*float64, error)
}

// EstimateSource is an opaque external price estimator (e.g. a model
// service). Advisory only.
type EstimateSource interface {
	Estimate(ctx context.Context, assetID string, horizonHours float64) (*float64, error)
}
