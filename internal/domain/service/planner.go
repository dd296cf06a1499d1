package service

import (
	"fmt"

	"chainarb/internal/domain/model"
)

// ExecutionPlanner converts an accepted opportunity plus size into an
// ordered two-leg plan: buy on the cheap chain, sell on the expensive
// one. The plan is immutable once submitted to the messenger.
type ExecutionPlanner struct {
	feeRate float64 // cross-chain fee as fraction of notional
}

func NewExecutionPlanner(feeRate float64) *ExecutionPlanner {
	if feeRate <= 0 {
		feeRate = 0.01
	}
	return &ExecutionPlanner{feeRate: feeRate}
}

// Build produces the plan. estimatedProfit = priceDiff*size - fee.
func (ep *ExecutionPlanner) Build(opp *model.ArbitrageOpportunity, size float64) (*model.ExecutionPlan, error) {
	if opp == nil {
		return nil, fmt.Errorf("nil opportunity")
	}
	if size <= 0 {
		return nil, fmt.Errorf("position size must be positive, got %.4f", size)
	}
	if opp.SellPrice <= opp.BuyPrice {
		return nil, fmt.Errorf("inverted prices: buy %.6f >= sell %.6f", opp.BuyPrice, opp.SellPrice)
	}

	fee := ep.feeRate * size
	gross := (opp.SellPrice - opp.BuyPrice) * size

	return &model.ExecutionPlan{
		Opportunity:     *opp,
		PositionSize:    size,
		EstimatedFee:    fee,
		EstimatedProfit: gross - fee,
		Legs: [2]model.Leg{
			{Chain: opp.SourceChain, Side: model.SideBuy, Amount: size, Price: opp.BuyPrice},
			{Chain: opp.DestinationChain, Side: model.SideSell, Amount: size, Price: opp.SellPrice},
		},
	}, nil
}
