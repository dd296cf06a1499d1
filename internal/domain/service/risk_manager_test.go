package service

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
)

func testOpportunity(buy, sell, srcVol, dstVol float64) *model.ArbitrageOpportunity {
	now := time.Now()
	return &model.ArbitrageOpportunity{
		ID:                "opp-1",
		AssetID:           "TOKEN",
		SourceChain:       "polygon",
		DestinationChain:  "ethereum",
		BuyPrice:          buy,
		SellPrice:         sell,
		SourceVolume:      srcVol,
		DestinationVolume: dstVol,
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Minute),
	}
}

func TestSizeUsesThinnerSide(t *testing.T) {
	limits := DefaultRiskLimits()
	rm := NewRiskManager(limits, NewExposureLedger(limits.MaxTotalExposure))

	// min(10000, 7500) * 0.10 = 750
	size, err := rm.Size(testOpportunity(1.0, 1.1, 10000, 7500))
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 750 {
		t.Errorf("size = %v, want 750", size)
	}
}

func TestSizeCappedByPositionLimit(t *testing.T) {
	limits := DefaultRiskLimits()
	limits.MaxPositionSize = 500
	rm := NewRiskManager(limits, NewExposureLedger(limits.MaxTotalExposure))

	size, err := rm.Size(testOpportunity(1.0, 1.1, 100000, 100000))
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 500 {
		t.Errorf("size = %v, want 500", size)
	}
}

func TestSizeCappedByRemainingBudget(t *testing.T) {
	limits := DefaultRiskLimits()
	limits.MaxTotalExposure = 1000
	ledger := NewExposureLedger(1000)
	rm := NewRiskManager(limits, ledger)

	if err := ledger.Reserve("TOKEN", "polygon", 750); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// thinner side 3000 * 0.10 = 300, remaining budget 250
	size, err := rm.Size(testOpportunity(1.0, 1.1, 3000, 5000))
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 250 {
		t.Errorf("size = %v, want 250", size)
	}
}

func TestSizeRejectsExhaustedBudget(t *testing.T) {
	limits := DefaultRiskLimits()
	limits.MaxTotalExposure = 100
	ledger := NewExposureLedger(100)
	rm := NewRiskManager(limits, ledger)

	if err := ledger.Reserve("TOKEN", "polygon", 100); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	_, err := rm.Size(testOpportunity(1.0, 1.1, 3000, 5000))
	if !errors.Is(err, arberr.ErrExposureExceeded) {
		t.Errorf("expected ErrExposureExceeded, got %v", err)
	}
}

func TestReserveAtomicUnderConcurrency(t *testing.T) {
	ledger := NewExposureLedger(1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve("TOKEN", "polygon", 100); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 10 {
		t.Errorf("accepted %d reservations from a 1000 budget at 100 each, want 10", accepted)
	}
	if r := ledger.Remaining(); r != 0 {
		t.Errorf("remaining = %v, want 0", r)
	}
}

func TestReleaseRestoresBudget(t *testing.T) {
	ledger := NewExposureLedger(1000)
	if err := ledger.Reserve("TOKEN", "polygon", 400); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	ledger.Release("TOKEN", "polygon", 400)
	if r := ledger.Remaining(); r != 1000 {
		t.Errorf("remaining = %v, want 1000", r)
	}

	total, byAsset, byChain := ledger.Snapshot()
	if total != 0 || byAsset["TOKEN"] != 0 || byChain["polygon"] != 0 {
		t.Errorf("snapshot not zeroed: total=%v asset=%v chain=%v", total, byAsset["TOKEN"], byChain["polygon"])
	}
}

func TestCheckLiquidity(t *testing.T) {
	rm := NewRiskManager(DefaultRiskLimits(), NewExposureLedger(100000))

	obs := &model.PriceObservation{
		Chain: "polygon", AssetID: "TOKEN",
		Price: 1.0, Bid: 0.999, Ask: 1.001, Volume: 1000, Available: true,
	}

	if err := rm.CheckLiquidity(obs, 100, 0); err != nil {
		t.Errorf("size at 10%% of volume should pass: %v", err)
	}
	if err := rm.CheckLiquidity(obs, 101, 0); !errors.Is(err, arberr.ErrLiquidityInsufficient) {
		t.Errorf("size above 10%% of volume should fail, got %v", err)
	}
	if err := rm.CheckLiquidity(obs, 100, 50); !errors.Is(err, arberr.ErrLiquidityInsufficient) {
		t.Errorf("size above book depth should fail, got %v", err)
	}

	wide := &model.PriceObservation{
		Chain: "polygon", AssetID: "TOKEN",
		Price: 1.0, Bid: 0.90, Ask: 1.10, Volume: 10000, Available: true,
	}
	if err := rm.CheckLiquidity(wide, 100, 0); !errors.Is(err, arberr.ErrLiquidityInsufficient) {
		t.Errorf("wide spread should fail, got %v", err)
	}
}

func TestEvaluateStopLoss(t *testing.T) {
	rm := NewRiskManager(DefaultRiskLimits(), NewExposureLedger(100000))
	pos := &model.Position{AssetID: "TOKEN", Chain: "polygon", Size: 100, EntryPrice: 1.0}

	pnl, exit := rm.EvaluateStopLoss(pos, 0.95)
	if exit {
		t.Errorf("5%% drawdown should not trigger at a 10%% stop, pnl %v", pnl)
	}
	pnl, exit = rm.EvaluateStopLoss(pos, 0.90)
	if !exit {
		t.Error("10% drawdown should trigger")
	}
	if math.Abs(pnl-(-10)) > 1e-9 {
		t.Errorf("pnl = %v, want -10", pnl)
	}
	if _, exit := rm.EvaluateStopLoss(pos, 1.20); exit {
		t.Error("profit must never trigger a stop")
	}
}

func TestAcceptNetsFees(t *testing.T) {
	limits := DefaultRiskLimits()
	rm := NewRiskManager(limits, NewExposureLedger(limits.MaxTotalExposure))

	// gross (0.67-0.60)*100 = 7, fee 0.01*100 = 1, net 6
	opp := testOpportunity(0.60, 0.67, 10000, 10000)
	net, err := rm.Accept(opp, 100, time.Now())
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if math.Abs(net-6) > 1e-9 {
		t.Errorf("net = %v, want 6", net)
	}
}

func TestAcceptRejectsExpired(t *testing.T) {
	rm := NewRiskManager(DefaultRiskLimits(), NewExposureLedger(100000))
	opp := testOpportunity(0.60, 0.67, 10000, 10000)
	opp.ExpiresAt = time.Now().Add(-time.Second)

	_, err := rm.Accept(opp, 100, time.Now())
	if !errors.Is(err, arberr.ErrOpportunityExpired) {
		t.Errorf("expected ErrOpportunityExpired, got %v", err)
	}
}

func TestAcceptRejectsThinProfit(t *testing.T) {
	limits := DefaultRiskLimits()
	limits.MinProfit = 10
	rm := NewRiskManager(limits, NewExposureLedger(limits.MaxTotalExposure))

	opp := testOpportunity(0.60, 0.67, 10000, 10000)
	if _, err := rm.Accept(opp, 100, time.Now()); err == nil {
		t.Error("net 6 below minimum 10 should be rejected")
	}
}
