package service

import "chainarb/internal/domain/model"

// SentimentInput carries the raw readings for one cycle. Nil fields mean
// the source was unavailable.
type SentimentInput struct {
	FearGreedIndex *float64 // 0-100
	AssetSentiment *float64 // 0-100
	SocialScore    *float64 // -50..+50
}

// SentimentScorer folds fear/greed, per-asset sentiment and social score
// into one composite. Missing inputs default to neutral with reduced
// confidence; it never fails.
type SentimentScorer struct{}

func NewSentimentScorer() *SentimentScorer {
	return &SentimentScorer{}
}

const neutralSentiment = 50.0

func (ss *SentimentScorer) Score(in SentimentInput) *model.SentimentSnapshot {
	confidence := 0.9
	missingPenalty := 0.2

	fearGreed := neutralSentiment
	if in.FearGreedIndex != nil {
		fearGreed = clamp(*in.FearGreedIndex, 0, 100)
	} else {
		confidence -= missingPenalty
	}

	asset := neutralSentiment
	if in.AssetSentiment != nil {
		asset = clamp(*in.AssetSentiment, 0, 100)
	} else {
		confidence -= missingPenalty
	}

	social := 0.0
	if in.SocialScore != nil {
		social = clamp(*in.SocialScore, -50, 50)
	} else {
		confidence -= missingPenalty
	}

	composite := 0.4*fearGreed + 0.4*asset + 0.2*(social+50)

	return &model.SentimentSnapshot{
		FearGreedIndex: fearGreed,
		AssetSentiment: asset,
		SocialScore:    social,
		CompositeScore: composite,
		Confidence:     clamp(confidence, 0.1, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
