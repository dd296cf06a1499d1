package service

import (
	"math"
	"sync"
	"testing"
	"time"

	"chainarb/internal/domain/model"
)

func TestTrackerStats(t *testing.T) {
	pt := NewPerformanceTracker()

	profits := []float64{5, 3, -2, 7, -1}
	fees := []float64{0.5, 0.3, 0.2, 0.7, 0.1}
	for i := range profits {
		pt.Record(model.TradeResult{
			AssetID:  "TOKEN",
			Profit:   profits[i],
			Fee:      fees[i],
			Success:  profits[i] > 0,
			ClosedAt: time.Now(),
		})
	}

	s := pt.Stats()
	if s.Trades != 5 || s.Wins != 3 {
		t.Errorf("trades=%d wins=%d, want 5/3", s.Trades, s.Wins)
	}
	if math.Abs(s.WinRate-0.6) > 1e-9 {
		t.Errorf("win rate = %v, want 0.6", s.WinRate)
	}
	// gross 12, fees 1.8, net 10.2
	if math.Abs(s.NetProfit-10.2) > 1e-9 {
		t.Errorf("net profit = %v, want 10.2", s.NetProfit)
	}
}

func TestTrackerPerAsset(t *testing.T) {
	pt := NewPerformanceTracker()
	pt.Record(model.TradeResult{AssetID: "WETH", Profit: 5, Fee: 1})
	pt.Record(model.TradeResult{AssetID: "WBTC", Profit: -2, Fee: 1})

	weth := pt.AssetStats("WETH")
	if weth.Trades != 1 || weth.Wins != 1 || weth.NetProfit != 4 {
		t.Errorf("unexpected WETH stats: %+v", weth)
	}
	if empty := pt.AssetStats("USDC"); empty.Trades != 0 {
		t.Errorf("expected zero stats for untraded asset, got %+v", empty)
	}
}

func TestTrackerConcurrentRecord(t *testing.T) {
	pt := NewPerformanceTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pt.Record(model.TradeResult{AssetID: "TOKEN", Profit: 1, Fee: 0.1})
		}()
	}
	wg.Wait()

	if s := pt.Stats(); s.Trades != 50 {
		t.Errorf("trades = %d, want 50", s.Trades)
	}
}
