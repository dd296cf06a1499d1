package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	appservice "chainarb/internal/application/service"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/service"
	"chainarb/internal/infrastructure/codec"
	"chainarb/internal/infrastructure/config"
	"chainarb/internal/infrastructure/source"
	"chainarb/internal/infrastructure/storage"
	"chainarb/internal/infrastructure/storage/composite"
	postgresrepo "chainarb/internal/infrastructure/storage/postgres"
	redisrepo "chainarb/internal/infrastructure/storage/redis"
	sqliterepo "chainarb/internal/infrastructure/storage/sqlite"
	"chainarb/internal/infrastructure/transport"
)

// Container 包含所有应用依赖
type Container struct {
	cfg *config.Config

	repo      port.Repository
	sources   []port.PriceSource
	transport port.Transport
	engine    *appservice.Engine
	messenger *appservice.Messenger

	closeOnce   sync.Once
	closerChain []func() error
}

// New 创建新的容器实例
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(); err != nil {
		// 清理已初始化的资源
		_ = c.Close()
		return nil, err
	}
	if err := c.initTransport(); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.initSources()
	c.initPipeline()

	return c, nil
}

// initStorage 初始化存储层（SQLite、Redis、Postgres -> composite）
func (c *Container) initStorage() error {
	if !c.cfg.Storage.Enabled {
		c.repo = storage.NewMemory()
		log.Info().Msg("storage disabled, using in-memory repository")
		return nil
	}

	var repos []port.Repository

	// SQLite first: it is the durable store the composite serves reads from
	if c.cfg.Storage.SQLite.Enabled {
		repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		repos = append(repos, repo)
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", c.cfg.Storage.SQLite.Path).Msg("sqlite initialized")
	}

	if c.cfg.Storage.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.cfg.Storage.Redis.Addr,
			Password: c.cfg.Storage.Redis.Password,
			DB:       c.cfg.Storage.Redis.DB,
		})

		// 测试连接
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}

		ttl := time.Duration(c.cfg.Storage.Redis.TTLSeconds) * time.Second
		repo := redisrepo.New(
			rdb,
			c.cfg.Storage.Redis.Prefix,
			ttl,
			c.cfg.Storage.Redis.Stream,
			c.cfg.Storage.Redis.Channel,
		)
		repos = append(repos, repo)
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing redis connection")
			return rdb.Close()
		})
		log.Info().
			Str("addr", c.cfg.Storage.Redis.Addr).
			Int("db", c.cfg.Storage.Redis.DB).
			Msg("redis initialized")
	}

	if c.cfg.Storage.Postgres.Enabled {
		repo, err := postgresrepo.New(c.cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		repos = append(repos, repo)
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("postgres initialized")
	}

	if len(repos) == 0 {
		c.repo = storage.NewMemory()
		log.Warn().Msg("storage enabled but no backend configured, using in-memory repository")
		return nil
	}
	c.repo = composite.New(repos...)
	return nil
}

// initTransport 初始化跨链传输客户端
func (c *Container) initTransport() error {
	cd, err := codec.New(c.cfg.Codec.Decimals)
	if err != nil {
		return err
	}

	if c.cfg.Transport.RelayURL == "" {
		log.Warn().Msg("no relay url configured, using in-process fake transport")
		c.transport = transport.NewFakeTransport()
		return nil
	}

	timeout := time.Duration(c.cfg.Transport.TimeoutSec) * time.Second
	c.transport = transport.NewRelayClient(c.cfg.Transport.RelayURL, timeout, cd)
	log.Info().
		Str("relay", c.cfg.Transport.RelayURL).
		Int("decimals", c.cfg.Codec.Decimals).
		Msg("relay transport initialized")
	return nil
}

func (c *Container) initSources() {
	c.sources = source.Build(c.cfg.Sources.Price, c.cfg.Sources.TimeoutSec)
	log.Info().Int("count", len(c.sources)).Msg("price sources built")
}

// StartSources launches the streaming feeds. Safe to call once before
// the engine runs; HTTP sources are no-ops here.
func (c *Container) StartSources(ctx context.Context) {
	for _, s := range c.sources {
		if st, ok := s.(interface{ Start(context.Context) }); ok {
			st.Start(ctx)
		}
	}
}

func (c *Container) initPipeline() {
	cfg := c.cfg

	limits := service.RiskLimits{
		MaxTotalExposure:  cfg.Risk.MaxTotalExposure,
		MaxPositionSize:   cfg.Risk.MaxPositionSize,
		LiquidityFraction: cfg.Risk.LiquidityFraction,
		MaxVolumeFraction: cfg.Risk.MaxVolumeFraction,
		MaxSpreadPct:      cfg.Risk.MaxSpreadPct / 100,
		StopLossPct:       cfg.Risk.StopLossPct / 100,
		FeeRate:           cfg.Arbitrage.FeeRatePct / 100,
		MinProfit:         cfg.Risk.MinProfit,
	}
	ledger := service.NewExposureLedger(limits.MaxTotalExposure)
	risk := service.NewRiskManager(limits, ledger)
	tracker := service.NewPerformanceTracker()

	tuning := service.DefaultImpactTuning()
	t := cfg.Tuning
	if t.MomentumWeight > 0 {
		tuning.MomentumWeight = t.MomentumWeight
	}
	if t.HorizonDecayHours > 0 {
		tuning.HorizonDecayHours = t.HorizonDecayHours
	}
	if t.VolumeAmpRatio > 0 {
		tuning.VolumeAmpRatio = t.VolumeAmpRatio
	}
	if t.VolumeAmpFactor > 0 {
		tuning.VolumeAmpFactor = t.VolumeAmpFactor
	}
	if t.StructureBound > 0 {
		tuning.StructureBound = t.StructureBound
	}

	fetchTimeout := time.Duration(cfg.Sources.TimeoutSec) * time.Second
	aggregator := appservice.NewPriceAggregator(c.sources, fetchTimeout)

	history := source.NewHTTPHistorySource(
		cfg.Sources.History.Name, cfg.Sources.History.URL, cfg.Sources.TimeoutSec)
	sentiment := source.NewHTTPSentimentSource(
		cfg.Sources.Sentiment.Name,
		cfg.Sources.Sentiment.FearGreedURL,
		cfg.Sources.Sentiment.AssetURL,
		cfg.Sources.TimeoutSec)

	mcfg := appservice.MessengerConfig{
		SendRetries:  cfg.Transport.SendRetries,
		BackoffMin:   500 * time.Millisecond,
		BackoffMax:   8 * time.Second,
		CallTimeout:  time.Duration(cfg.Transport.TimeoutSec) * time.Second,
		PollInterval: time.Duration(cfg.Transport.PollIntervalSec) * time.Second,
		StaleAfter:   time.Duration(cfg.Transport.StaleAfterSec) * time.Second,
	}
	c.messenger = appservice.NewMessenger(c.transport, c.repo, tracker, ledger, mcfg)

	c.engine = appservice.NewEngine(
		appservice.EngineConfig{
			Assets:           cfg.Assets.List,
			Chains:           cfg.Chains.List,
			CycleInterval:    time.Duration(cfg.App.CycleIntervalSec) * time.Second,
			FetchTimeout:     fetchTimeout,
			TimeHorizonHours: cfg.App.TimeHorizonHours,
			HistoryLimit:     cfg.App.HistoryLimit,
		},
		appservice.EngineDeps{
			Aggregator: aggregator,
			History:    history,
			Sentiment:  sentiment,
			Technical:  service.NewTechnicalScorer(),
			Scorer:     service.NewSentimentScorer(),
			Blender:    service.NewPredictionBlender(tuning),
			Detector: service.NewOpportunityDetector(
				cfg.Arbitrage.MinDiffPct/100,
				time.Duration(cfg.Arbitrage.TTLSec)*time.Second),
			Risk:      risk,
			Planner:   service.NewExecutionPlanner(cfg.Arbitrage.FeeRatePct / 100),
			Messenger: c.messenger,
			Repo:      c.repo,
		},
	)
}

// Config 获取配置
func (c *Container) Config() *config.Config { return c.cfg }

// Repo 获取组合仓储
func (c *Container) Repo() port.Repository { return c.repo }

// Engine 获取检测引擎
func (c *Container) Engine() *appservice.Engine { return c.engine }

// Messenger 获取跨链消息服务
func (c *Container) Messenger() *appservice.Messenger { return c.messenger }

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
