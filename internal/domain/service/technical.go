package service

import (
	"math"

	"github.com/markcheno/go-talib"

	"chainarb/internal/domain/model"
)

const (
	shortMAPeriod    = 5
	longMAPeriod     = 10
	rsiPeriod        = 14
	momentumLookback = 6
	minSeriesLen     = 10
)

// TechnicalScorer derives momentum/RSI/volatility signals from a
// historical series.
type TechnicalScorer struct{}

func NewTechnicalScorer() *TechnicalScorer {
	return &TechnicalScorer{}
}

// Score computes the technical read for one series. Below 10 points the
// result is marked insufficient rather than failing.
func (ts *TechnicalScorer) Score(series *model.HistoricalSeries) *model.TechnicalScore {
	closes := series.Closes()
	volumes := series.Volumes()
	n := len(closes)

	if n < minSeriesLen {
		return &model.TechnicalScore{
			Trend:      "insufficient",
			Momentum:   0,
			Signal:     model.SignalHold,
			Confidence: 0.1,
		}
	}

	shortMA := lastOf(talib.Sma(closes, shortMAPeriod))
	longMA := lastOf(talib.Sma(closes, longMAPeriod))
	rsi := simpleRSI(closes, rsiPeriod)
	volatility := normalizedVolatility(closes)

	// momentum over the last <=6 points
	ref := closes[max(0, n-momentumLookback)]
	momentum := 0.0
	if ref != 0 {
		momentum = (closes[n-1] - ref) / ref
	}

	volumeRatio := 1.0
	if mv := mean(volumes); mv > 0 {
		volumeRatio = volumes[len(volumes)-1] / mv
	}

	trend := "neutral"
	switch {
	case shortMA > 1.02*longMA:
		trend = "bullish"
	case shortMA < 0.98*longMA:
		trend = "bearish"
	}

	confidence := math.Min(0.9, 0.4+0.5*math.Min(1, float64(n)/24))

	return &model.TechnicalScore{
		Trend:       trend,
		ShortMA:     shortMA,
		LongMA:      longMA,
		RSI:         rsi,
		Volatility:  volatility,
		Momentum:    momentum,
		VolumeRatio: volumeRatio,
		Signal:      deriveSignal(rsi, momentum, volumeRatio, trend),
		Confidence:  confidence,
	}
}

// deriveSignal applies the signal rules in priority order: RSI extremes
// with volume confirmation, then strong momentum confirmed by trend.
func deriveSignal(rsi, momentum, volumeRatio float64, trend string) model.Signal {
	if rsi < 30 && momentum > -0.05 && volumeRatio > 1.2 {
		return model.SignalBuy
	}
	if rsi > 70 && momentum < 0.05 && volumeRatio > 1.2 {
		return model.SignalSell
	}
	if momentum > 0.1 && trend == "bullish" {
		return model.SignalBuy
	}
	if momentum < -0.1 && trend == "bearish" {
		return model.SignalSell
	}
	return model.SignalHold
}

// simpleRSI is RSI over the last <=period deltas using plain average
// gain/loss, not Wilder smoothing. RSI is 100 exactly when the average
// loss over the window is zero.
func simpleRSI(closes []float64, period int) float64 {
	n := len(closes)
	if n < 2 {
		return 50
	}
	start := max(1, n-period)

	var gains, losses float64
	var count float64
	for i := start; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses += -delta
		}
		count++
	}
	if count == 0 {
		return 50
	}

	avgLoss := losses / count
	if avgLoss == 0 {
		return 100
	}
	avgGain := gains / count
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// normalizedVolatility is population stddev over mean.
func normalizedVolatility(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum/float64(len(values))) / m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func lastOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
