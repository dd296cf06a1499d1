package service

import (
	"math"
	"testing"
	"time"

	"chainarb/internal/domain/model"
)

func goodObservation() *model.PriceObservation {
	return &model.PriceObservation{
		Chain:     "ethereum",
		AssetID:   "TOKEN",
		Price:     100,
		Bid:       99.95,
		Ask:       100.05,
		Volume:    50000,
		Quality:   model.QualityHigh,
		Available: true,
		Timestamp: time.Now(),
	}
}

func TestBlendFallbackWithoutObservation(t *testing.T) {
	pb := NewPredictionBlender(DefaultImpactTuning())

	got := pb.Blend(BlendInput{TimeHorizonHours: 24})
	if got.Confidence != 0.1 {
		t.Errorf("confidence = %v, want 0.1", got.Confidence)
	}
	if got.Signal != model.SignalHold {
		t.Errorf("signal = %q, want hold", got.Signal)
	}

	down := goodObservation()
	down.Available = false
	got = pb.Blend(BlendInput{Observation: down, TimeHorizonHours: 24})
	if got.Confidence != 0.1 || got.PredictedPrice != down.Price {
		t.Errorf("unavailable observation should fall back to base: %+v", got)
	}
}

func TestBlendSentimentBands(t *testing.T) {
	pb := NewPredictionBlender(DefaultImpactTuning())
	tests := []struct {
		composite float64
		want      float64
	}{
		{90, 0.12},
		{75, 0.06},
		{65, 0.03},
		{50, 0},
		{35, -0.04},
		{25, -0.08},
		{10, -0.15},
	}
	for _, tt := range tests {
		got := pb.sentimentImpact(&model.SentimentSnapshot{CompositeScore: tt.composite})
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("sentimentImpact(%v) = %v, want %v", tt.composite, got, tt.want)
		}
	}
	if got := pb.sentimentImpact(nil); got != 0 {
		t.Errorf("nil snapshot impact = %v, want 0", got)
	}
}

func TestBlendTechnicalImpact(t *testing.T) {
	pb := NewPredictionBlender(DefaultImpactTuning())

	// momentum 0.1 * weight 0.6 + trend confirm 0.02 = 0.08
	ts := &model.TechnicalScore{Trend: "bullish", Momentum: 0.1, RSI: 50, VolumeRatio: 1.0}
	if got := pb.technicalImpact(ts); math.Abs(got-0.08) > 1e-12 {
		t.Errorf("impact = %v, want 0.08", got)
	}

	// volume amplification multiplies the whole impact
	ts.VolumeRatio = 2.0
	if got := pb.technicalImpact(ts); math.Abs(got-0.096) > 1e-12 {
		t.Errorf("amplified impact = %v, want 0.096", got)
	}

	insufficient := &model.TechnicalScore{Trend: "insufficient", Momentum: 0.5}
	if got := pb.technicalImpact(insufficient); got != 0 {
		t.Errorf("insufficient series impact = %v, want 0", got)
	}
}

func TestBlendHorizonDecay(t *testing.T) {
	pb := NewPredictionBlender(DefaultImpactTuning())
	obs := goodObservation()
	snap := &model.SentimentSnapshot{CompositeScore: 90, Confidence: 0.9}

	near := pb.Blend(BlendInput{Observation: obs, Sentiment: snap, TimeHorizonHours: 1})
	far := pb.Blend(BlendInput{Observation: obs, Sentiment: snap, TimeHorizonHours: 168})

	if math.Abs(far.Breakdown.Total) >= math.Abs(near.Breakdown.Total) {
		t.Errorf("impact should decay with horizon: near %v far %v", near.Breakdown.Total, far.Breakdown.Total)
	}
	if far.Confidence >= near.Confidence {
		t.Errorf("confidence should decay with horizon: near %v far %v", near.Confidence, far.Confidence)
	}
}

func TestBlendConfidenceClamped(t *testing.T) {
	pb := NewPredictionBlender(DefaultImpactTuning())
	obs := goodObservation()
	series := seriesFrom([]float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100,
		100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100}, 1000)

	got := pb.Blend(BlendInput{
		Observation:      obs,
		Series:           series,
		Technical:        &model.TechnicalScore{Trend: "neutral", Confidence: 0.9},
		Sentiment:        &model.SentimentSnapshot{CompositeScore: 50, Confidence: 0.9},
		TimeHorizonHours: 1,
	})
	if got.Confidence < 0.1 || got.Confidence > 0.95 {
		t.Errorf("confidence %v outside [0.1, 0.95]", got.Confidence)
	}
}

func TestBlendExternalEstimateAveraged(t *testing.T) {
	pb := NewPredictionBlender(DefaultImpactTuning())
	obs := goodObservation()
	obs.Bid, obs.Ask = 0, 0 // no book, no structure impact

	est := 110.0
	got := pb.Blend(BlendInput{Observation: obs, ExternalEstimate: &est, TimeHorizonHours: 24})

	// base prediction is 100 with no other inputs, averaged with 110
	if math.Abs(got.PredictedPrice-105) > 1e-9 {
		t.Errorf("predicted = %v, want 105", got.PredictedPrice)
	}
	if got.Signal != model.SignalBuy {
		t.Errorf("a +5%% blended move should signal buy, got %q", got.Signal)
	}
}

func TestBlendSignalThresholds(t *testing.T) {
	tests := []struct {
		impact float64
		want   model.Signal
	}{
		{0.05, model.SignalBuy},
		{0.01, model.SignalHold},
		{-0.01, model.SignalHold},
		{-0.05, model.SignalSell},
	}
	for _, tt := range tests {
		if got := impactSignal(tt.impact); got != tt.want {
			t.Errorf("impactSignal(%v) = %q, want %q", tt.impact, got, tt.want)
		}
	}
}
