package service

import (
	"math"
	"testing"

	"chainarb/internal/domain/model"
)

func TestBuildPlan(t *testing.T) {
	ep := NewExecutionPlanner(0.01)
	opp := testOpportunity(0.60, 0.67, 10000, 10000)

	plan, err := ep.Build(opp, 100)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// gross 7, fee 1, estimated profit 6
	if math.Abs(plan.EstimatedFee-1) > 1e-9 {
		t.Errorf("fee = %v, want 1", plan.EstimatedFee)
	}
	if math.Abs(plan.EstimatedProfit-6) > 1e-9 {
		t.Errorf("profit = %v, want 6", plan.EstimatedProfit)
	}

	buy, sell := plan.Legs[0], plan.Legs[1]
	if buy.Side != model.SideBuy || buy.Chain != "polygon" || buy.Price != 0.60 {
		t.Errorf("bad buy leg: %+v", buy)
	}
	if sell.Side != model.SideSell || sell.Chain != "ethereum" || sell.Price != 0.67 {
		t.Errorf("bad sell leg: %+v", sell)
	}
	if buy.Amount != 100 || sell.Amount != 100 {
		t.Errorf("leg amounts %v/%v, want 100", buy.Amount, sell.Amount)
	}
}

func TestBuildPlanRejections(t *testing.T) {
	ep := NewExecutionPlanner(0.01)
	opp := testOpportunity(0.60, 0.67, 10000, 10000)

	if _, err := ep.Build(nil, 100); err == nil {
		t.Error("nil opportunity must fail")
	}
	if _, err := ep.Build(opp, 0); err == nil {
		t.Error("zero size must fail")
	}
	inverted := testOpportunity(0.67, 0.60, 10000, 10000)
	if _, err := ep.Build(inverted, 100); err == nil {
		t.Error("inverted prices must fail")
	}
}
