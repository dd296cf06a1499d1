package service

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/model"
)

const (
	agreementTolerance   = 0.02  // two sources agree within 2%
	consistencyTolerance = 0.05  // beyond this the sources are suspect
	syntheticSpread      = 0.001 // 0.1% of price when no venue has a book
)

// PriceAggregator queries every configured source concurrently and
// cross-validates the results into one observation. It never returns an
// error: when all sources fail the observation is marked unavailable.
type PriceAggregator struct {
	sources []port.PriceSource
	timeout time.Duration
	now     func() time.Time
}

func NewPriceAggregator(sources []port.PriceSource, timeout time.Duration) *PriceAggregator {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &PriceAggregator{sources: sources, timeout: timeout, now: time.Now}
}

type sourceResult struct {
	source port.PriceSource
	quote  *port.SourceQuote
	err    error
}

// Aggregate fetches all sources in parallel and joins on whatever subset
// succeeded. A failing source never blocks the others.
func (pa *PriceAggregator) Aggregate(ctx context.Context, assetID, chain string) *model.PriceObservation {
	results := make(chan sourceResult, len(pa.sources))
	for _, src := range pa.sources {
		go func(s port.PriceSource) {
			qctx, cancel := context.WithTimeout(ctx, pa.timeout)
			defer cancel()
			q, err := s.Quote(qctx, assetID, chain)
			results <- sourceResult{source: s, quote: q, err: err}
		}(src)
	}

	ok := make([]sourceResult, 0, len(pa.sources))
	for range pa.sources {
		r := <-results
		if r.err != nil || r.quote == nil || r.quote.Price <= 0 {
			if r.err != nil {
				log.Debug().Err(r.err).Str("source", r.source.Name()).
					Str("asset", assetID).Str("chain", chain).Msg("source unavailable")
			}
			continue
		}
		ok = append(ok, r)
	}

	if len(ok) == 0 {
		log.Warn().Str("asset", assetID).Str("chain", chain).Msg("all price sources failed")
		return &model.PriceObservation{
			Chain:     chain,
			AssetID:   assetID,
			Timestamp: pa.now(),
			Quality:   model.QualityLow,
			Available: false,
		}
	}

	obs := pa.combine(assetID, chain, ok)

	// cross-validation: a second opinion far away from the pick is
	// absorbed as a confidence downgrade, never a failure
	for _, r := range ok {
		if r.source.Name() == obs.SourceName {
			continue
		}
		if relDiff(r.quote.Price, obs.Price) > consistencyTolerance {
			log.Warn().Str("asset", assetID).Str("chain", chain).
				Str("source", r.source.Name()).
				Float64("price", r.quote.Price).
				Float64("picked", obs.Price).
				Msg("sources disagree beyond tolerance")
			obs.Quality = downgrade(obs.Quality)
			break
		}
	}

	if obs.Bid <= 0 || obs.Ask <= 0 {
		half := obs.Price * syntheticSpread / 2
		obs.Bid = obs.Price - half
		obs.Ask = obs.Price + half
	}
	return obs
}

// combine applies the quality ladder: a two-sided quote gives high
// quality via the midpoint; a single-sided quote is medium unless a
// second independent source agrees within 2%. The result never rises
// above the serving source's configured tier.
func (pa *PriceAggregator) combine(assetID, chain string, ok []sourceResult) *model.PriceObservation {
	obs := &model.PriceObservation{
		Chain:     chain,
		AssetID:   assetID,
		Timestamp: pa.now(),
		Available: true,
	}

	for _, r := range ok {
		if r.quote.HasBidAsk() {
			obs.Price = (r.quote.Bid + r.quote.Ask) / 2
			obs.Bid = r.quote.Bid
			obs.Ask = r.quote.Ask
			obs.Volume = r.quote.Volume
			obs.SourceName = r.source.Name()
			obs.Quality = capAtTier(model.QualityHigh, r.source.Quality())
			return obs
		}
	}

	first := ok[0]
	obs.Price = first.quote.Price
	obs.Volume = first.quote.Volume
	obs.SourceName = first.source.Name()
	obs.Quality = capAtTier(model.QualityMedium, first.source.Quality())

	for _, r := range ok[1:] {
		if relDiff(r.quote.Price, first.quote.Price) <= agreementTolerance {
			obs.Price = (obs.Price + r.quote.Price) / 2
			obs.Volume = math.Max(obs.Volume, r.quote.Volume)
			obs.Quality = capAtTier(model.QualityHigh, first.source.Quality())
			obs.Quality = capAtTier(obs.Quality, r.source.Quality())
			break
		}
	}
	return obs
}

func relDiff(a, b float64) float64 {
	lo := math.Min(a, b)
	if lo <= 0 {
		return math.Inf(1)
	}
	return math.Abs(a-b) / lo
}

func downgrade(q model.QualityTier) model.QualityTier {
	switch q {
	case model.QualityHigh:
		return model.QualityMedium
	default:
		return model.QualityLow
	}
}

func tierRank(q model.QualityTier) int {
	switch q {
	case model.QualityHigh:
		return 2
	case model.QualityMedium:
		return 1
	default:
		return 0
	}
}

// capAtTier lowers a shape-derived quality to the source's configured
// tier. A source with no tier set does not cap.
func capAtTier(q, tier model.QualityTier) model.QualityTier {
	if tier == "" {
		return q
	}
	if tierRank(tier) < tierRank(q) {
		return tier
	}
	return q
}
