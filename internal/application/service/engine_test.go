package service

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
	"chainarb/internal/domain/service"
	"chainarb/internal/infrastructure/storage"
	"chainarb/internal/infrastructure/transport"
)

// chainSource serves a fixed two-sided quote per chain.
type chainSource struct {
	name   string
	quotes map[string]port.SourceQuote // chain -> quote
}

func (s *chainSource) Name() string               { return s.name }
func (s *chainSource) Quality() model.QualityTier { return model.QualityHigh }
func (s *chainSource) Quote(ctx context.Context, assetID, chain string) (*port.SourceQuote, error) {
	q, ok := s.quotes[chain]
	if !ok {
		return nil, arberr.ErrDataUnavailable
	}
	return &q, nil
}

type noHistory struct{}

func (noHistory) Name() string { return "none" }
func (noHistory) History(ctx context.Context, assetID, chain string, limit int) ([]model.PriceObservation, error) {
	return nil, arberr.ErrDataUnavailable
}

type neutralSentiment struct{}

func (neutralSentiment) Name() string { return "neutral" }
func (neutralSentiment) FearGreed(ctx context.Context) (*float64, error) {
	v := 50.0
	return &v, nil
}
func (neutralSentiment) AssetSentiment(ctx context.Context, assetID string) (*float64, error) {
	return nil, arberr.ErrDataUnavailable
}

type engineFixture struct {
	engine  *Engine
	fake    *transport.FakeTransport
	repo    *storage.Memory
	tracker *service.PerformanceTracker
	ledger  *service.ExposureLedger
}

func newEngineFixture(t *testing.T, sources []port.PriceSource) *engineFixture {
	t.Helper()

	fake := transport.NewFakeTransport()
	repo := storage.NewMemory()
	tracker := service.NewPerformanceTracker()
	ledger := service.NewExposureLedger(100000)
	limits := service.DefaultRiskLimits()
	risk := service.NewRiskManager(limits, ledger)
	messenger := NewMessenger(fake, repo, tracker, ledger, testMessengerConfig())

	engine := NewEngine(
		EngineConfig{
			Assets:           []string{"TOKEN"},
			Chains:           []string{"ethereum", "polygon"},
			CycleInterval:    time.Second,
			FetchTimeout:     time.Second,
			TimeHorizonHours: 24,
			HistoryLimit:     48,
		},
		EngineDeps{
			Aggregator: NewPriceAggregator(sources, time.Second),
			History:    noHistory{},
			Sentiment:  neutralSentiment{},
			Technical:  service.NewTechnicalScorer(),
			Scorer:     service.NewSentimentScorer(),
			Blender:    service.NewPredictionBlender(service.DefaultImpactTuning()),
			Detector:   service.NewOpportunityDetector(0.03, time.Minute),
			Risk:       risk,
			Planner:    service.NewExecutionPlanner(0.01),
			Messenger:  messenger,
			Repo:       repo,
		},
	)
	return &engineFixture{engine: engine, fake: fake, repo: repo, tracker: tracker, ledger: ledger}
}

func divergentSources() []port.PriceSource {
	return []port.PriceSource{&chainSource{
		name: "dex",
		quotes: map[string]port.SourceQuote{
			"polygon":  {Price: 0.60, Bid: 0.5997, Ask: 0.6003, Volume: 10000},
			"ethereum": {Price: 0.68, Bid: 0.6797, Ask: 0.6803, Volume: 10000},
		},
	}}
}

func TestCycleDetectsAndSubmits(t *testing.T) {
	f := newEngineFixture(t, divergentSources())
	ctx := context.Background()

	f.engine.Cycle(ctx, "TOKEN")

	opps := f.repo.Opportunities()
	if len(opps) != 1 {
		t.Fatalf("opportunities persisted = %d, want 1", len(opps))
	}
	opp := opps[0]
	if opp.SourceChain != "polygon" || opp.DestinationChain != "ethereum" {
		t.Errorf("wrong sides: %s -> %s", opp.SourceChain, opp.DestinationChain)
	}
	// the persisted row is the enriched one: (0.68-0.60)*1000 gross,
	// 1% of the 1000 notional in fees, 70 net
	if math.Abs(opp.EstimatedFee-10) > 1e-6 {
		t.Errorf("estimated fee = %v, want 10", opp.EstimatedFee)
	}
	if math.Abs(opp.NetProfitEstimate-70) > 1e-6 {
		t.Errorf("net profit estimate = %v, want 70", opp.NetProfitEstimate)
	}

	open, err := f.repo.ListOpenTransactions(ctx)
	if err != nil {
		t.Fatalf("ListOpenTransactions failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open transactions = %d, want 1", len(open))
	}
	// min(10000, 10000) * 0.10 = 1000 reserved until settlement
	if open[0].Amount != 1000 {
		t.Errorf("amount = %v, want 1000", open[0].Amount)
	}
	if r := f.ledger.Remaining(); r != 99000 {
		t.Errorf("remaining budget = %v, want 99000", r)
	}
}

func TestCycleSettlementRoundTrip(t *testing.T) {
	f := newEngineFixture(t, divergentSources())
	ctx := context.Background()

	f.engine.Cycle(ctx, "TOKEN")

	f.fake.AutoAdvance(true)
	f.engine.deps.Messenger.PollOnce(ctx) // pending -> in_progress
	f.engine.deps.Messenger.PollOnce(ctx) // in_progress -> success

	stats := f.tracker.Stats()
	if stats.Trades != 1 || stats.Wins != 1 {
		t.Fatalf("trade not settled: %+v", stats)
	}
	// (0.68-0.60)*1000 = 80 gross
	if math.Abs(stats.GrossProfit-80) > 1e-6 {
		t.Errorf("gross profit = %v, want 80", stats.GrossProfit)
	}
	if r := f.ledger.Remaining(); r != 100000 {
		t.Errorf("exposure not released: remaining %v", r)
	}
}

func TestCycleNoOpportunityWhenConverged(t *testing.T) {
	sources := []port.PriceSource{&chainSource{
		name: "dex",
		quotes: map[string]port.SourceQuote{
			"polygon":  {Price: 1.00, Bid: 0.999, Ask: 1.001, Volume: 10000},
			"ethereum": {Price: 1.01, Bid: 1.009, Ask: 1.011, Volume: 10000},
		},
	}}
	f := newEngineFixture(t, sources)

	f.engine.Cycle(context.Background(), "TOKEN")

	if opps := f.repo.Opportunities(); len(opps) != 0 {
		t.Errorf("1%% divergence below the 3%% floor produced %d opportunities", len(opps))
	}
}

func TestCyclePersistsObservations(t *testing.T) {
	f := newEngineFixture(t, divergentSources())
	ctx := context.Background()

	f.engine.Cycle(ctx, "TOKEN")

	for _, chain := range []string{"ethereum", "polygon"} {
		obs := f.repo.LatestObservation(chain, "TOKEN")
		if obs == nil || !obs.Available {
			t.Errorf("no observation persisted for %s", chain)
		}
	}
}

func TestTickSingleFlightPerAsset(t *testing.T) {
	block := make(chan struct{})
	var callCount int32

	slow := &slowSource{block: block, count: &callCount}
	f := newEngineFixture(t, []port.PriceSource{slow})

	ctx := context.Background()
	f.engine.tick(ctx)
	f.engine.tick(ctx) // previous cycle still blocked on the source
	close(block)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("cycles never finished")
		default:
		}
		f.engine.mu.Lock()
		busy := len(f.engine.inflight) > 0
		f.engine.mu.Unlock()
		if !busy {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// one cycle, two chains: exactly two source calls, not four
	if n := atomic.LoadInt32(&callCount); n != 2 {
		t.Errorf("source calls = %d, want 2 (second tick must be skipped)", n)
	}
}

type slowSource struct {
	block chan struct{}
	count *int32
}

func (s *slowSource) Name() string               { return "slow" }
func (s *slowSource) Quality() model.QualityTier { return model.QualityHigh }
func (s *slowSource) Quote(ctx context.Context, assetID, chain string) (*port.SourceQuote, error) {
	atomic.AddInt32(s.count, 1)
	<-s.block
	return nil, arberr.ErrDataUnavailable
}
