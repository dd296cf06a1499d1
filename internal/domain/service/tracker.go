package service

import (
	"sync"

	"chainarb/internal/domain/model"
)

// PerformanceStats is the aggregate over completed trades.
type PerformanceStats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"` // fraction
	GrossProfit float64 `json:"gross_profit"`
	TotalFees   float64 `json:"total_fees"`
	NetProfit   float64 `json:"net_profit"`
}

// PerformanceTracker aggregates completed trades into win-rate and P&L
// statistics. Safe for concurrent use; the messenger records from its
// poll loop while readers snapshot.
type PerformanceTracker struct {
	mu      sync.Mutex
	trades  []model.TradeResult
	byAsset map[string]*PerformanceStats
}

func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{
		byAsset: make(map[string]*PerformanceStats),
	}
}

// Record adds one completed trade. A win is a trade with positive gross
// profit.
func (pt *PerformanceTracker) Record(trade model.TradeResult) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.trades = append(pt.trades, trade)

	s := pt.byAsset[trade.AssetID]
	if s == nil {
		s = &PerformanceStats{}
		pt.byAsset[trade.AssetID] = s
	}
	accumulate(s, trade)
}

// Stats returns the aggregate over all trades.
func (pt *PerformanceTracker) Stats() PerformanceStats {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	var s PerformanceStats
	for _, t := range pt.trades {
		accumulate(&s, t)
	}
	return s
}

// AssetStats returns the aggregate for one asset, zero-valued when the
// asset has no trades.
func (pt *PerformanceTracker) AssetStats(assetID string) PerformanceStats {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if s := pt.byAsset[assetID]; s != nil {
		return *s
	}
	return PerformanceStats{}
}

func accumulate(s *PerformanceStats, t model.TradeResult) {
	s.Trades++
	if t.Profit > 0 {
		s.Wins++
	}
	s.GrossProfit += t.Profit
	s.TotalFees += t.Fee
	s.NetProfit = s.GrossProfit - s.TotalFees
	s.WinRate = float64(s.Wins) / float64(s.Trades)
}
