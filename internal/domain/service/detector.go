package service

import (
	"math"
	"time"

	"github.com/google/uuid"

	"chainarb/internal/domain/model"
)

// OpportunityDetector compares simultaneous observations of one asset
// across chains and emits the best arbitrage opportunity above the
// configured threshold.
type OpportunityDetector struct {
	minDiffPct float64       // fraction, reference 0.03
	ttl        time.Duration // reference 3-5 minutes
	now        func() time.Time
}

func NewOpportunityDetector(minDiffPct float64, ttl time.Duration) *OpportunityDetector {
	if minDiffPct <= 0 {
		minDiffPct = 0.03
	}
	if ttl <= 0 {
		ttl = 4 * time.Minute
	}
	return &OpportunityDetector{
		minDiffPct: minDiffPct,
		ttl:        ttl,
		now:        time.Now,
	}
}

// PriceDifferencePct is |p2-p1| relative to the smaller price. It is
// scale-invariant and symmetric in its two inputs.
func PriceDifferencePct(p1, p2 float64) float64 {
	lo := math.Min(p1, p2)
	if lo <= 0 {
		return 0
	}
	return math.Abs(p2-p1) / lo
}

// Detect scans every chain pair and returns the qualifying pair with the
// largest divergence, ties broken by larger combined volume. Returns nil
// when nothing clears the threshold.
func (d *OpportunityDetector) Detect(assetID string, obs []*model.PriceObservation, confidence float64) *model.ArbitrageOpportunity {
	usable := make([]*model.PriceObservation, 0, len(obs))
	for _, o := range obs {
		if o != nil && o.Available && o.Price > 0 {
			usable = append(usable, o)
		}
	}
	if len(usable) < 2 {
		return nil
	}

	var best *model.ArbitrageOpportunity
	var bestVolume float64

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			a, b := usable[i], usable[j]
			if a.Chain == b.Chain {
				continue
			}
			diff := PriceDifferencePct(a.Price, b.Price)
			if diff < d.minDiffPct {
				continue
			}

			buy, sell := a, b
			if b.Price < a.Price {
				buy, sell = b, a
			}
			combined := a.Volume + b.Volume
			if best != nil && (diff < best.PriceDifferencePct ||
				(diff == best.PriceDifferencePct && combined <= bestVolume)) {
				continue
			}

			now := d.now()
			best = &model.ArbitrageOpportunity{
				ID:                 uuid.NewString(),
				AssetID:            assetID,
				SourceChain:        buy.Chain,
				DestinationChain:   sell.Chain,
				BuyPrice:           buy.Price,
				SellPrice:          sell.Price,
				PriceDifferencePct: diff,
				SourceVolume:       buy.Volume,
				DestinationVolume:  sell.Volume,
				Confidence:         confidence,
				CreatedAt:          now,
				ExpiresAt:          now.Add(d.ttl),
			}
			bestVolume = combined
		}
	}
	return best
}
