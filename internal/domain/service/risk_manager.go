package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
)

// RiskLimits 风险限制参数
type RiskLimits struct {
	MaxTotalExposure  float64 // 总敞口最大值（quote 单位）
	MaxPositionSize   float64 // 单个头寸最大值
	LiquidityFraction float64 // 可用流动性比例，默认 0.10
	MaxVolumeFraction float64 // 头寸占日成交量上限，默认 0.10
	MaxSpreadPct      float64 // 最大可接受价差，默认 0.05
	StopLossPct       float64 // 止损比例，默认 0.10
	FeeRate           float64 // 跨链费用比例，默认 0.01
	MinProfit         float64 // 净利润下限
}

// DefaultRiskLimits returns the reference limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxTotalExposure:  100000,
		MaxPositionSize:   10000,
		LiquidityFraction: 0.10,
		MaxVolumeFraction: 0.10,
		MaxSpreadPct:      0.05,
		StopLossPct:       0.10,
		FeeRate:           0.01,
		MinProfit:         0,
	}
}

// ExposureLedger is the shared exposure state. All read-decide-write
// sequences happen under one mutex so two concurrently evaluated
// opportunities can never both be accepted from stale snapshots.
type ExposureLedger struct {
	mu       sync.Mutex
	maxTotal float64
	total    float64
	byAsset  map[string]float64
	byChain  map[string]float64
}

func NewExposureLedger(maxTotal float64) *ExposureLedger {
	return &ExposureLedger{
		maxTotal: maxTotal,
		byAsset:  make(map[string]float64),
		byChain:  make(map[string]float64),
	}
}

// Reserve atomically checks the remaining budget and books notional
// against it. Rejects with ExposureExceeded when the remaining budget is
// zero or negative.
func (l *ExposureLedger) Reserve(assetID, chain string, notional float64) error {
	if notional <= 0 {
		return fmt.Errorf("notional must be positive, got %.4f", notional)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.maxTotal - l.total
	if remaining <= 0 || notional > remaining {
		return fmt.Errorf("%w: requested %.2f, remaining %.2f",
			arberr.ErrExposureExceeded, notional, remaining)
	}

	l.total += notional
	l.byAsset[assetID] += notional
	l.byChain[chain] += notional
	return nil
}

// Release returns notional to the budget on position close or failed
// execution.
func (l *ExposureLedger) Release(assetID, chain string, notional float64) {
	if notional <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total = math.Max(0, l.total-notional)
	l.byAsset[assetID] = math.Max(0, l.byAsset[assetID]-notional)
	l.byChain[chain] = math.Max(0, l.byChain[chain]-notional)
}

// Snapshot returns current totals for reporting.
func (l *ExposureLedger) Snapshot() (total float64, byAsset, byChain map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byAsset = make(map[string]float64, len(l.byAsset))
	for k, v := range l.byAsset {
		byAsset[k] = v
	}
	byChain = make(map[string]float64, len(l.byChain))
	for k, v := range l.byChain {
		byChain[k] = v
	}
	return l.total, byAsset, byChain
}

// Remaining returns the unreserved budget.
func (l *ExposureLedger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxTotal - l.total
}

// RiskManager enforces exposure, liquidity and stop-loss constraints and
// computes the allowed position size. The ledger is injected so tests and
// the messenger share the same instance.
type RiskManager struct {
	limits RiskLimits
	ledger *ExposureLedger
}

func NewRiskManager(limits RiskLimits, ledger *ExposureLedger) *RiskManager {
	if limits.LiquidityFraction <= 0 {
		limits.LiquidityFraction = 0.10
	}
	if limits.MaxVolumeFraction <= 0 {
		limits.MaxVolumeFraction = 0.10
	}
	if limits.MaxSpreadPct <= 0 {
		limits.MaxSpreadPct = 0.05
	}
	if limits.StopLossPct <= 0 {
		limits.StopLossPct = 0.10
	}
	return &RiskManager{limits: limits, ledger: ledger}
}

func (rm *RiskManager) Ledger() *ExposureLedger { return rm.ledger }

// Size computes the allowed notional for an opportunity: the thinner
// side's volume times the liquidity fraction, capped by the per-position
// limit and by the remaining exposure budget.
func (rm *RiskManager) Size(opp *model.ArbitrageOpportunity) (float64, error) {
	remaining := rm.ledger.Remaining()
	if remaining <= 0 {
		return 0, fmt.Errorf("%w: no remaining budget", arberr.ErrExposureExceeded)
	}

	size := math.Min(opp.SourceVolume, opp.DestinationVolume) * rm.limits.LiquidityFraction
	size = math.Min(size, rm.limits.MaxPositionSize)
	size = math.Min(size, remaining)
	if size <= 0 {
		return 0, fmt.Errorf("%w: sized to zero", arberr.ErrLiquidityInsufficient)
	}
	return size, nil
}

// CheckLiquidity rejects positions that would move the market: more than
// 10% of daily volume, more than the book depth at best price, or a
// spread wider than 5%.
func (rm *RiskManager) CheckLiquidity(obs *model.PriceObservation, size, bookDepth float64) error {
	if obs.Volume > 0 && size > obs.Volume*rm.limits.MaxVolumeFraction {
		return fmt.Errorf("%w: size %.2f exceeds %.0f%% of daily volume %.2f",
			arberr.ErrLiquidityInsufficient, size, rm.limits.MaxVolumeFraction*100, obs.Volume)
	}
	if bookDepth > 0 && size > bookDepth {
		return fmt.Errorf("%w: size %.2f exceeds book depth %.2f",
			arberr.ErrLiquidityInsufficient, size, bookDepth)
	}
	if spread := obs.Spread(); spread > rm.limits.MaxSpreadPct {
		return fmt.Errorf("%w: spread %.4f above limit %.4f",
			arberr.ErrLiquidityInsufficient, spread, rm.limits.MaxSpreadPct)
	}
	return nil
}

// EvaluateStopLoss reports whether an open position should be exited.
// Triggered when the unrealized loss reaches StopLossPct of the entry
// notional.
func (rm *RiskManager) EvaluateStopLoss(pos *model.Position, currentPrice float64) (unrealizedPnL float64, exit bool) {
	unrealizedPnL = (currentPrice - pos.EntryPrice) * pos.Size
	notional := pos.EntryPrice * pos.Size
	if notional <= 0 {
		return unrealizedPnL, false
	}
	if unrealizedPnL < 0 && -unrealizedPnL/notional >= rm.limits.StopLossPct {
		return unrealizedPnL, true
	}
	return unrealizedPnL, false
}

// Accept nets the estimated cross-chain fee from gross profit and
// compares against the minimum profit threshold. Expired opportunities
// are never accepted.
func (rm *RiskManager) Accept(opp *model.ArbitrageOpportunity, size float64, now time.Time) (net float64, err error) {
	if opp.Expired(now) {
		return 0, fmt.Errorf("%w: expired at %s", arberr.ErrOpportunityExpired, opp.ExpiresAt.Format(time.RFC3339))
	}
	gross := (opp.SellPrice - opp.BuyPrice) * size
	fee := rm.limits.FeeRate * size
	net = gross - fee
	if net <= rm.limits.MinProfit {
		return net, fmt.Errorf("net profit %.4f below minimum %.4f", net, rm.limits.MinProfit)
	}
	return net, nil
}
