package service

import (
	"math"

	"chainarb/internal/domain/model"
)

// ImpactTuning externalizes the piecewise scoring thresholds so they can
// be adjusted for backtesting without code changes.
type ImpactTuning struct {
	// sentiment composite score bands -> price impact
	SentExtremeGreed float64 // composite > 80
	SentGreed        float64 // composite > 70
	SentMildGreed    float64 // composite > 60
	SentExtremeFear  float64 // composite < 20
	SentFear         float64 // composite < 30
	SentMildFear     float64 // composite < 40

	// technical impact
	MomentumWeight   float64 // 0.5 - 0.7
	OversoldBonus    float64 // RSI < 30
	OverboughtPenal  float64 // RSI > 70
	TrendConfirm     float64 // trend agrees with momentum sign
	VolumeAmpRatio   float64 // volume ratio above which impact is amplified
	VolumeAmpFactor  float64
	StructureBound   float64 // structure impact clamp
	TightSpreadPct   float64
	TightSpreadBonus float64
	WideSpreadPct    float64
	WideSpreadPenal  float64

	HorizonDecayHours float64 // exp(-h/decay)
}

// DefaultImpactTuning returns the reference constants.
func DefaultImpactTuning() ImpactTuning {
	return ImpactTuning{
		SentExtremeGreed: 0.12,
		SentGreed:        0.06,
		SentMildGreed:    0.03,
		SentExtremeFear:  -0.15,
		SentFear:         -0.08,
		SentMildFear:     -0.04,

		MomentumWeight:   0.6,
		OversoldBonus:    0.03,
		OverboughtPenal:  -0.03,
		TrendConfirm:     0.02,
		VolumeAmpRatio:   1.5,
		VolumeAmpFactor:  1.2,
		StructureBound:   0.05,
		TightSpreadPct:   0.002,
		TightSpreadBonus: 0.01,
		WideSpreadPct:    0.02,
		WideSpreadPenal:  -0.02,

		HorizonDecayHours: 168,
	}
}

// PredictionBlender combines aggregator, technical and sentiment inputs
// into one predicted price with a self-assessed confidence. It never
// returns an error: on any internal failure the caller gets the base
// price back at confidence 0.1.
type PredictionBlender struct {
	tuning ImpactTuning
}

func NewPredictionBlender(tuning ImpactTuning) *PredictionBlender {
	if tuning.HorizonDecayHours <= 0 {
		tuning = DefaultImpactTuning()
	}
	return &PredictionBlender{tuning: tuning}
}

// BlendInput is everything one prediction needs. Technical and sentiment
// may be nil when their pipelines degraded.
type BlendInput struct {
	Observation      *model.PriceObservation
	Series           *model.HistoricalSeries
	Technical        *model.TechnicalScore
	Sentiment        *model.SentimentSnapshot
	ExternalEstimate *float64 // optional opaque estimate, e.g. an LLM price call
	TimeHorizonHours float64
}

func (pb *PredictionBlender) Blend(in BlendInput) *model.Prediction {
	if in.Observation == nil || !in.Observation.Available || in.Observation.Price <= 0 {
		return pb.fallback(in)
	}
	base := in.Observation.Price

	sentImpact := pb.sentimentImpact(in.Sentiment)
	techImpact := pb.technicalImpact(in.Technical)
	structImpact := pb.structureImpact(in.Observation, in.Series)

	decay := math.Exp(-in.TimeHorizonHours / pb.tuning.HorizonDecayHours)
	total := (sentImpact + techImpact + structImpact) * decay

	predicted := base * (1 + total)
	if in.ExternalEstimate != nil && *in.ExternalEstimate > 0 {
		// the external estimate is advisory: averaged in, never trusted alone
		predicted = (predicted + *in.ExternalEstimate) / 2
		total = predicted/base - 1
	}

	return &model.Prediction{
		AssetID:        in.Observation.AssetID,
		Chain:          in.Observation.Chain,
		BasePrice:      base,
		PredictedPrice: predicted,
		Confidence:     pb.confidence(in, total),
		Breakdown: model.ImpactBreakdown{
			Sentiment: sentImpact,
			Technical: techImpact,
			Structure: structImpact,
			Total:     total,
		},
		Signal:           impactSignal(total),
		TimeHorizonHours: in.TimeHorizonHours,
	}
}

func (pb *PredictionBlender) fallback(in BlendInput) *model.Prediction {
	base := 0.0
	assetID, chain := "", ""
	if in.Observation != nil {
		base = in.Observation.Price
		assetID = in.Observation.AssetID
		chain = in.Observation.Chain
	}
	return &model.Prediction{
		AssetID:          assetID,
		Chain:            chain,
		BasePrice:        base,
		PredictedPrice:   base,
		Confidence:       0.1,
		Signal:           model.SignalHold,
		TimeHorizonHours: in.TimeHorizonHours,
	}
}

func (pb *PredictionBlender) sentimentImpact(s *model.SentimentSnapshot) float64 {
	if s == nil {
		return 0
	}
	t := pb.tuning
	switch score := s.CompositeScore; {
	case score > 80:
		return t.SentExtremeGreed
	case score > 70:
		return t.SentGreed
	case score > 60:
		return t.SentMildGreed
	case score < 20:
		return t.SentExtremeFear
	case score < 30:
		return t.SentFear
	case score < 40:
		return t.SentMildFear
	default:
		return 0
	}
}

func (pb *PredictionBlender) technicalImpact(ts *model.TechnicalScore) float64 {
	if ts == nil || ts.Trend == "insufficient" {
		return 0
	}
	t := pb.tuning

	impact := t.MomentumWeight * ts.Momentum

	if ts.RSI < 30 {
		impact += t.OversoldBonus
	} else if ts.RSI > 70 {
		impact += t.OverboughtPenal
	}

	if ts.Trend == "bullish" && ts.Momentum > 0 {
		impact += t.TrendConfirm
	} else if ts.Trend == "bearish" && ts.Momentum < 0 {
		impact -= t.TrendConfirm
	}

	if ts.VolumeRatio > t.VolumeAmpRatio {
		impact *= t.VolumeAmpFactor
	}
	return impact
}

// structureImpact reads spread tightness plus the 5-point volume trend,
// bounded to +-StructureBound.
func (pb *PredictionBlender) structureImpact(obs *model.PriceObservation, series *model.HistoricalSeries) float64 {
	t := pb.tuning
	impact := 0.0

	if obs.Bid > 0 && obs.Ask > obs.Bid {
		spread := obs.Spread()
		if spread < t.TightSpreadPct {
			impact += t.TightSpreadBonus
		} else if spread > t.WideSpreadPct {
			impact += t.WideSpreadPenal
		}
	}

	if series != nil && len(series.Points) >= 5 {
		vols := series.Volumes()
		vols = vols[len(vols)-5:]
		slope := (vols[4] - vols[0]) / 4
		if avg := mean(vols); avg > 0 {
			impact += clamp(slope/avg*0.1, -0.03, 0.03)
		}
	}

	return clamp(impact, -t.StructureBound, t.StructureBound)
}

func (pb *PredictionBlender) confidence(in BlendInput, totalImpact float64) float64 {
	conf := 0.5

	if in.Observation.Quality == model.QualityHigh {
		conf += 0.1
	}
	if in.Series != nil {
		conf += 0.15 * math.Min(1, float64(len(in.Series.Points))/24)
	}
	if in.Sentiment != nil {
		conf += 0.1 * in.Sentiment.Confidence
	}
	if in.Technical != nil {
		conf += 0.1 * in.Technical.Confidence
	}

	// further out means less certain
	switch h := in.TimeHorizonHours; {
	case h > 168:
		conf *= 0.65
	case h > 72:
		conf *= 0.75
	case h > 24:
		conf *= 0.85
	}

	// big predicted moves are penalized
	switch abs := math.Abs(totalImpact); {
	case abs > 0.5:
		conf *= 0.5
	case abs > 0.2:
		conf *= 0.7
	}

	return clamp(conf, 0.1, 0.95)
}

func impactSignal(totalImpact float64) model.Signal {
	switch {
	case totalImpact > 0.02:
		return model.SignalBuy
	case totalImpact < -0.02:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}
