package model

import "time"

// QualityTier grades how trustworthy a price observation is.
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// PriceObservation is a single cross-validated quote for an asset on one
// chain. Immutable once produced by the aggregator.
type PriceObservation struct {
	Chain      string      `json:"chain"`
	AssetID    string      `json:"asset_id"`
	Price      float64     `json:"price"`
	Bid        float64     `json:"bid"`
	Ask        float64     `json:"ask"`
	Volume     float64     `json:"volume"` // 24h volume in quote units
	Timestamp  time.Time   `json:"timestamp"`
	SourceName string      `json:"source_name"`
	Quality    QualityTier `json:"quality"`
	Available  bool        `json:"available"` // false when every source failed
}

// Spread returns ask-bid as a fraction of the midpoint.
func (o *PriceObservation) Spread() float64 {
	mid := (o.Bid + o.Ask) / 2
	if mid <= 0 {
		return 0
	}
	return (o.Ask - o.Bid) / mid
}

// HistoricalSeries is a bounded, ordered price history for one asset+chain.
// Oldest entries are evicted on overflow.
type HistoricalSeries struct {
	AssetID string
	Chain   string
	MaxLen  int
	Points  []PriceObservation
}

// Append adds an observation, evicting the oldest point when full. A
// point timestamped before the newest one is dropped: the stream stays
// non-decreasing in time.
func (h *HistoricalSeries) Append(obs PriceObservation) {
	if n := len(h.Points); n > 0 && obs.Timestamp.Before(h.Points[n-1].Timestamp) {
		return
	}
	h.Points = append(h.Points, obs)
	if h.MaxLen > 0 && len(h.Points) > h.MaxLen {
		h.Points = h.Points[len(h.Points)-h.MaxLen:]
	}
}

// Closes returns the price column of the series.
func (h *HistoricalSeries) Closes() []float64 {
	out := make([]float64, len(h.Points))
	for i, p := range h.Points {
		out[i] = p.Price
	}
	return out
}

// Volumes returns the volume column of the series.
func (h *HistoricalSeries) Volumes() []float64 {
	out := make([]float64, len(h.Points))
	for i, p := range h.Points {
		out[i] = p.Volume
	}
	return out
}

// SentimentSnapshot is a per-cycle market mood reading. Never persisted
// across cycles.
type SentimentSnapshot struct {
	FearGreedIndex float64 `json:"fear_greed_index"` // 0-100
	AssetSentiment float64 `json:"asset_sentiment"`  // 0-100, neutral 50 when missing
	SocialScore    float64 `json:"social_score"`     // -50..+50
	CompositeScore float64 `json:"composite_score"`  // 0-100
	Confidence     float64 `json:"confidence"`       // 0-1
}

// Signal is the directional call attached to a prediction.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// TechnicalScore holds momentum/RSI/volatility signals derived from a
// historical series.
type TechnicalScore struct {
	Trend       string  `json:"trend"` // bullish, bearish, neutral, insufficient
	ShortMA     float64 `json:"short_ma"`
	LongMA      float64 `json:"long_ma"`
	RSI         float64 `json:"rsi"`
	Volatility  float64 `json:"volatility"`
	Momentum    float64 `json:"momentum"`
	VolumeRatio float64 `json:"volume_ratio"`
	Signal      Signal  `json:"signal"`
	Confidence  float64 `json:"confidence"`
}

// ImpactBreakdown records the components that moved a prediction away
// from its base price.
type ImpactBreakdown struct {
	Sentiment float64 `json:"sentiment"`
	Technical float64 `json:"technical"`
	Structure float64 `json:"structure"`
	Total     float64 `json:"total"` // after horizon decay
}

// Prediction is the blended price estimate for one cycle. Recomputed each
// cycle, not persisted.
type Prediction struct {
	AssetID          string          `json:"asset_id"`
	Chain            string          `json:"chain"`
	BasePrice        float64         `json:"base_price"`
	PredictedPrice   float64         `json:"predicted_price"`
	Confidence       float64         `json:"confidence"` // clamped to [0.1, 0.95]
	Breakdown        ImpactBreakdown `json:"breakdown"`
	Signal           Signal          `json:"signal"`
	TimeHorizonHours float64         `json:"time_horizon_hours"`
}

// ArbitrageOpportunity is a detected cross-chain price divergence. It must
// never be executed once time.Now() is past ExpiresAt.
type ArbitrageOpportunity struct {
	ID                 string    `json:"id"`
	AssetID            string    `json:"asset_id"`
	SourceChain        string    `json:"source_chain"`      // buy side (lower price)
	DestinationChain   string    `json:"destination_chain"` // sell side (higher price)
	BuyPrice           float64   `json:"buy_price"`
	SellPrice          float64   `json:"sell_price"`
	PriceDifferencePct float64   `json:"price_difference_pct"` // fraction, not percent
	SourceVolume       float64   `json:"source_volume"`
	DestinationVolume  float64   `json:"destination_volume"`
	EstimatedFee       float64   `json:"estimated_fee"`
	NetProfitEstimate  float64   `json:"net_profit_estimate"`
	Confidence         float64   `json:"confidence"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// Expired reports whether the opportunity is past its TTL.
func (o *ArbitrageOpportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Position is an open holding on one chain. Contributes to exposure
// totals until closed.
type Position struct {
	AssetID    string    `json:"asset_id"`
	Chain      string    `json:"chain"`
	Size       float64   `json:"size"` // notional in quote units
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Side is the direction of one leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Leg is one side of a two-chain execution plan.
type Leg struct {
	Chain  string  `json:"chain"`
	Side   Side    `json:"side"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// ExecutionPlan is an accepted opportunity sized for execution. Immutable
// once handed to the messenger.
type ExecutionPlan struct {
	Opportunity     ArbitrageOpportunity `json:"opportunity"`
	PositionSize    float64              `json:"position_size"`
	EstimatedFee    float64              `json:"estimated_fee"`
	EstimatedProfit float64              `json:"estimated_profit"`
	Legs            [2]Leg               `json:"legs"`
}

// TxStatus is the lifecycle state of a cross-chain transaction. Terminal
// states never transition again.
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxInProgress TxStatus = "in_progress"
	TxSuccess    TxStatus = "success"
	TxFailed     TxStatus = "failed"
	TxCancelled  TxStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed || s == TxCancelled
}

// CrossChainTransaction tracks one in-flight message. Exclusively owned by
// the messenger, keyed by the opaque MessageID returned from send.
type CrossChainTransaction struct {
	ID               string     `json:"id"`
	MessageID        string     `json:"message_id"`
	OpportunityID    string     `json:"opportunity_id"`
	AssetID          string     `json:"asset_id"`
	SourceChain      string     `json:"source_chain"`
	DestinationChain string     `json:"destination_chain"`
	Status           TxStatus   `json:"status"`
	Amount           float64    `json:"amount"`
	Fees             float64    `json:"fees"` // estimate until reconciled
	FeesReconciled   bool       `json:"fees_reconciled"`
	LegFailed        string     `json:"leg_failed,omitempty"` // chain of a partially executed leg
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// FeeEstimate is the advisory fee quote returned before send.
type FeeEstimate struct {
	FeeToken    float64 `json:"fee_token"`
	FeeNative   float64 `json:"fee_native"`
	GasLimit    uint64  `json:"gas_limit"`
	USDEstimate float64 `json:"usd_estimate"`
}

// TradeResult is one completed round trip, fed into performance stats.
type TradeResult struct {
	OpportunityID string    `json:"opportunity_id"`
	MessageID     string    `json:"message_id"`
	AssetID       string    `json:"asset_id"`
	Profit        float64   `json:"profit"` // gross, before fee
	Fee           float64   `json:"fee"`
	Success       bool      `json:"success"`
	ClosedAt      time.Time `json:"closed_at"`
}
