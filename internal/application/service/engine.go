package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/model"
	"chainarb/internal/domain/service"
)

// EngineConfig drives the detection loop.
type EngineConfig struct {
	Assets           []string
	Chains           []string
	CycleInterval    time.Duration
	FetchTimeout     time.Duration
	TimeHorizonHours float64
	HistoryLimit     int
}

// EngineDeps wires the pipeline stages the way the container built them.
type EngineDeps struct {
	Aggregator *PriceAggregator
	History    port.HistorySource
	Sentiment  port.SentimentSource
	Estimate   port.EstimateSource // optional
	Technical  *service.TechnicalScorer
	Scorer     *service.SentimentScorer
	Blender    *service.PredictionBlender
	Detector   *service.OpportunityDetector
	Risk       *service.RiskManager
	Planner    *service.ExecutionPlanner
	Messenger  *Messenger
	Repo       port.Repository
}

// Engine runs the per-asset detection cycle: aggregate -> score -> blend
// -> detect -> size -> plan -> send. A cycle for an asset never overlaps
// a prior one still fetching.
type Engine struct {
	cfg  EngineConfig
	deps EngineDeps

	mu       sync.Mutex
	inflight map[string]bool
}

func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 48
	}
	if cfg.TimeHorizonHours <= 0 {
		cfg.TimeHorizonHours = 24
	}
	return &Engine{cfg: cfg, deps: deps, inflight: make(map[string]bool)}
}

// Run loops until the context ends. The messenger's poll loop is started
// alongside.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.cfg.Assets) == 0 || len(e.cfg.Chains) < 2 {
		return errors.New("engine needs at least one asset and two chains")
	}

	go e.deps.Messenger.Run(ctx)

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick launches a cycle per asset, skipping assets whose previous cycle
// still has network calls outstanding.
func (e *Engine) tick(ctx context.Context) {
	for _, asset := range e.cfg.Assets {
		e.mu.Lock()
		if e.inflight[asset] {
			e.mu.Unlock()
			log.Debug().Str("asset", asset).Msg("cycle still in flight, skipping")
			continue
		}
		e.inflight[asset] = true
		e.mu.Unlock()

		go func(asset string) {
			defer func() {
				e.mu.Lock()
				delete(e.inflight, asset)
				e.mu.Unlock()
			}()
			e.Cycle(ctx, asset)
		}(asset)
	}

	e.checkStops(ctx)
}

type cycleData struct {
	mu       sync.Mutex
	obs      map[string]*model.PriceObservation // chain -> observation
	series   map[string]*model.HistoricalSeries
	snapshot *model.SentimentSnapshot
}

// Cycle runs one full detection pass for an asset. All external fetches
// run concurrently and the pipeline joins on whatever subset succeeded.
func (e *Engine) Cycle(ctx context.Context, assetID string) {
	data := &cycleData{
		obs:    make(map[string]*model.PriceObservation),
		series: make(map[string]*model.HistoricalSeries),
	}

	var wg sync.WaitGroup
	for _, chain := range e.cfg.Chains {
		wg.Add(1)
		go func(chain string) {
			defer wg.Done()
			o := e.deps.Aggregator.Aggregate(ctx, assetID, chain)
			data.mu.Lock()
			data.obs[chain] = o
			data.mu.Unlock()
		}(chain)

		wg.Add(1)
		go func(chain string) {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()
			points, err := e.deps.History.History(hctx, assetID, chain, e.cfg.HistoryLimit)
			if err != nil {
				log.Debug().Err(err).Str("asset", assetID).Str("chain", chain).Msg("history unavailable")
				return
			}
			s := &model.HistoricalSeries{AssetID: assetID, Chain: chain, MaxLen: e.cfg.HistoryLimit}
			for _, p := range points {
				s.Append(p)
			}
			data.mu.Lock()
			data.series[chain] = s
			data.mu.Unlock()
		}(chain)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		data.snapshot = e.fetchSentiment(ctx, assetID)
	}()
	wg.Wait()

	// persist whatever we observed
	if e.deps.Repo != nil {
		for _, o := range data.obs {
			if o.Available {
				if err := e.deps.Repo.UpsertLatestObservation(ctx, o); err != nil {
					log.Error().Err(err).Str("asset", assetID).Msg("persist observation failed")
				}
			}
		}
	}

	prediction := e.predict(ctx, assetID, data)

	observations := make([]*model.PriceObservation, 0, len(data.obs))
	for _, o := range data.obs {
		observations = append(observations, o)
	}

	opp := e.deps.Detector.Detect(assetID, observations, prediction.Confidence)
	if opp == nil {
		return
	}
	log.Info().
		Str("asset", assetID).
		Str("buy_chain", opp.SourceChain).
		Str("sell_chain", opp.DestinationChain).
		Float64("diff_pct", opp.PriceDifferencePct*100).
		Float64("confidence", opp.Confidence).
		Msg("arbitrage opportunity detected")

	e.execute(ctx, opp, data)
}

// predict blends the best observation, its chain's history, and the
// sentiment snapshot into the cycle's prediction. Degrades to the base
// price at confidence 0.1 rather than failing.
func (e *Engine) predict(ctx context.Context, assetID string, data *cycleData) *model.Prediction {
	best := bestObservation(data.obs)
	var technical *model.TechnicalScore
	var series *model.HistoricalSeries
	if best != nil {
		series = data.series[best.Chain]
	}
	if series != nil {
		technical = e.deps.Technical.Score(series)
	}

	var estimate *float64
	if e.deps.Estimate != nil {
		ectx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		est, err := e.deps.Estimate.Estimate(ectx, assetID, e.cfg.TimeHorizonHours)
		cancel()
		if err == nil {
			estimate = est
		}
	}

	return e.deps.Blender.Blend(service.BlendInput{
		Observation:      best,
		Series:           series,
		Technical:        technical,
		Sentiment:        data.snapshot,
		ExternalEstimate: estimate,
		TimeHorizonHours: e.cfg.TimeHorizonHours,
	})
}

func (e *Engine) fetchSentiment(ctx context.Context, assetID string) *model.SentimentSnapshot {
	if e.deps.Sentiment == nil {
		return e.deps.Scorer.Score(service.SentimentInput{})
	}
	sctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	var in service.SentimentInput
	if fg, err := e.deps.Sentiment.FearGreed(sctx); err == nil {
		in.FearGreedIndex = fg
	}
	if as, err := e.deps.Sentiment.AssetSentiment(sctx, assetID); err == nil {
		in.AssetSentiment = as
	}
	return e.deps.Scorer.Score(in)
}

// execute takes an opportunity through risk sizing and hands the plan to
// the messenger. Detection and sizing complete before any send; the send
// itself is fire-and-forget from the cycle's point of view.
func (e *Engine) execute(ctx context.Context, opp *model.ArbitrageOpportunity, data *cycleData) {
	// persisted once the cycle is done with the opportunity, so accepted
	// rows carry the fee and net estimates filled in below
	if e.deps.Repo != nil {
		defer func() {
			if err := e.deps.Repo.SaveOpportunity(ctx, opp); err != nil {
				log.Error().Err(err).Str("opportunity", opp.ID).Msg("persist opportunity failed")
			}
		}()
	}

	size, err := e.deps.Risk.Size(opp)
	if err != nil {
		log.Warn().Err(err).Str("opportunity", opp.ID).Msg("opportunity rejected at sizing")
		return
	}

	for _, chain := range []string{opp.SourceChain, opp.DestinationChain} {
		if o := data.obs[chain]; o != nil {
			if err := e.deps.Risk.CheckLiquidity(o, size, 0); err != nil {
				log.Warn().Err(err).Str("opportunity", opp.ID).Str("chain", chain).Msg("opportunity rejected for liquidity")
				return
			}
		}
	}

	net, err := e.deps.Risk.Accept(opp, size, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("opportunity", opp.ID).Msg("opportunity rejected")
		return
	}
	opp.EstimatedFee = (opp.SellPrice-opp.BuyPrice)*size - net
	opp.NetProfitEstimate = net

	// the read-decide-write on the exposure budget is atomic: Reserve is
	// the single gate two concurrent cycles cannot both slip through
	if err := e.deps.Risk.Ledger().Reserve(opp.AssetID, opp.SourceChain, size); err != nil {
		log.Warn().Err(err).Str("opportunity", opp.ID).Msg("exposure reservation rejected")
		return
	}

	plan, err := e.deps.Planner.Build(opp, size)
	if err != nil {
		e.deps.Risk.Ledger().Release(opp.AssetID, opp.SourceChain, size)
		log.Error().Err(err).Str("opportunity", opp.ID).Msg("plan build failed")
		return
	}

	// TTL re-check after sizing: a stale opportunity is abandoned even
	// when partially staged
	if opp.Expired(time.Now()) {
		e.deps.Risk.Ledger().Release(opp.AssetID, opp.SourceChain, size)
		log.Warn().Str("opportunity", opp.ID).Msg("opportunity expired before send, abandoned")
		return
	}

	messageID, err := e.deps.Messenger.Send(ctx, plan)
	if err != nil {
		e.deps.Risk.Ledger().Release(opp.AssetID, opp.SourceChain, size)
		log.Error().Err(err).Str("opportunity", opp.ID).Msg("send failed, exposure released")
		return
	}

	log.Info().
		Str("opportunity", opp.ID).
		Str("message_id", messageID).
		Float64("size", size).
		Float64("net_profit_estimate", net).
		Msg("plan submitted")
}

// checkStops evaluates the stop-loss rule on in-flight source-chain
// inventory. Past the send there is nothing to cancel; a trigger is
// surfaced for the operator.
func (e *Engine) checkStops(ctx context.Context) {
	positions := e.deps.Messenger.OpenPositions()
	for _, pos := range positions {
		obs := e.deps.Aggregator.Aggregate(ctx, pos.AssetID, pos.Chain)
		if !obs.Available {
			continue
		}
		pnl, exit := e.deps.Risk.EvaluateStopLoss(&pos, obs.Price)
		if exit {
			log.Warn().
				Str("asset", pos.AssetID).
				Str("chain", pos.Chain).
				Float64("unrealized_pnl", pnl).
				Msg("stop-loss triggered on in-flight inventory")
		}
	}
}

func bestObservation(obs map[string]*model.PriceObservation) *model.PriceObservation {
	rank := map[model.QualityTier]int{
		model.QualityLow:    0,
		model.QualityMedium: 1,
		model.QualityHigh:   2,
	}
	var best *model.PriceObservation
	for _, o := range obs {
		if o == nil || !o.Available {
			continue
		}
		if best == nil || rank[o.Quality] > rank[best.Quality] {
			best = o
		}
	}
	return best
}
