package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		CycleIntervalSec int     `toml:"cycle_interval_sec"`
		TimeHorizonHours float64 `toml:"time_horizon_hours"`
		HistoryLimit     int     `toml:"history_limit"`
		LogLevel         string  `toml:"log_level"`
	} `toml:"app"`

	Assets struct {
		List []string `toml:"list"`
	} `toml:"assets"`

	Chains struct {
		List []string `toml:"list"`
	} `toml:"chains"`

	Arbitrage struct {
		MinDiffPct float64 `toml:"min_diff_pct"` // percent, reference 3.0
		TTLSec     int     `toml:"ttl_sec"`      // reference 180-300
		FeeRatePct float64 `toml:"fee_rate_pct"` // percent of notional, reference 1.0
	} `toml:"arbitrage"`

	Risk struct {
		MaxTotalExposure  float64 `toml:"max_total_exposure"`
		MaxPositionSize   float64 `toml:"max_position_size"`
		LiquidityFraction float64 `toml:"liquidity_fraction"`
		MaxVolumeFraction float64 `toml:"max_volume_fraction"`
		MaxSpreadPct      float64 `toml:"max_spread_pct"` // percent
		StopLossPct       float64 `toml:"stop_loss_pct"`  // percent
		MinProfit         float64 `toml:"min_profit"`
	} `toml:"risk"`

	// Tuning overrides the blender's piecewise constants for backtesting.
	// Zero values keep the reference defaults.
	Tuning struct {
		MomentumWeight    float64 `toml:"momentum_weight"`
		HorizonDecayHours float64 `toml:"horizon_decay_hours"`
		VolumeAmpRatio    float64 `toml:"volume_amp_ratio"`
		VolumeAmpFactor   float64 `toml:"volume_amp_factor"`
		StructureBound    float64 `toml:"structure_bound"`
	} `toml:"tuning"`

	Sources struct {
		Price []PriceSourceConfig `toml:"price"`

		History struct {
			Name string `toml:"name"`
			URL  string `toml:"url"`
		} `toml:"history"`

		Sentiment struct {
			Name         string `toml:"name"`
			FearGreedURL string `toml:"fear_greed_url"`
			AssetURL     string `toml:"asset_url"`
		} `toml:"sentiment"`

		TimeoutSec int `toml:"timeout_sec"`
	} `toml:"sources"`

	Transport struct {
		RelayURL        string `toml:"relay_url"`
		SendRetries     int    `toml:"send_retries"`
		TimeoutSec      int    `toml:"timeout_sec"`
		PollIntervalSec int    `toml:"poll_interval_sec"`
		StaleAfterSec   int    `toml:"stale_after_sec"`
	} `toml:"transport"`

	Codec struct {
		Decimals int `toml:"decimals"` // 6 or 18, agreed out of band
	} `toml:"codec"`

	Storage struct {
		Enabled bool `toml:"enabled"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled    bool   `toml:"enabled"`
			Addr       string `toml:"addr"`
			Password   string `toml:"password"`
			DB         int    `toml:"db"`
			Prefix     string `toml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds"`
			Stream     string `toml:"stream"`
			Channel    string `toml:"channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

// PriceSourceConfig describes one registered price source.
type PriceSourceConfig struct {
	Name    string `toml:"name"`    // registry key, e.g. "dexscreener"
	Kind    string `toml:"kind"`    // registered client kind: "http" or "ws"
	URL     string `toml:"url"`
	Quality string `toml:"quality"` // low, medium, high
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.CycleIntervalSec <= 0 {
		cfg.App.CycleIntervalSec = 30
	}
	if cfg.App.TimeHorizonHours <= 0 {
		cfg.App.TimeHorizonHours = 24
	}
	if cfg.App.HistoryLimit <= 0 {
		cfg.App.HistoryLimit = 48
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Arbitrage.MinDiffPct <= 0 {
		cfg.Arbitrage.MinDiffPct = 3.0
	}
	if cfg.Arbitrage.TTLSec <= 0 {
		cfg.Arbitrage.TTLSec = 240
	}
	if cfg.Arbitrage.FeeRatePct <= 0 {
		cfg.Arbitrage.FeeRatePct = 1.0
	}
	if cfg.Risk.MaxTotalExposure <= 0 {
		cfg.Risk.MaxTotalExposure = 100000
	}
	if cfg.Risk.MaxPositionSize <= 0 {
		cfg.Risk.MaxPositionSize = 10000
	}
	if cfg.Risk.LiquidityFraction <= 0 {
		cfg.Risk.LiquidityFraction = 0.10
	}
	if cfg.Risk.MaxVolumeFraction <= 0 {
		cfg.Risk.MaxVolumeFraction = 0.10
	}
	if cfg.Risk.MaxSpreadPct <= 0 {
		cfg.Risk.MaxSpreadPct = 5.0
	}
	if cfg.Risk.StopLossPct <= 0 {
		cfg.Risk.StopLossPct = 10.0
	}
	if cfg.Sources.TimeoutSec <= 0 {
		cfg.Sources.TimeoutSec = 8
	}
	if cfg.Transport.SendRetries <= 0 {
		cfg.Transport.SendRetries = 3
	}
	if cfg.Transport.TimeoutSec <= 0 {
		cfg.Transport.TimeoutSec = 10
	}
	if cfg.Transport.PollIntervalSec <= 0 {
		cfg.Transport.PollIntervalSec = 5
	}
	if cfg.Transport.StaleAfterSec <= 0 {
		cfg.Transport.StaleAfterSec = 120
	}
	// 6 decimals is the canonical scale; 18 only for deployments that
	// agreed to it out of band
	if cfg.Codec.Decimals == 0 {
		cfg.Codec.Decimals = 6
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "chainarb"
	}
}

func validate(cfg *Config) error {
	if len(cfg.Assets.List) == 0 {
		return errors.New("assets.list must not be empty")
	}
	if len(cfg.Chains.List) < 2 {
		return errors.New("chains.list needs at least two chains")
	}
	seen := make(map[string]bool)
	for _, c := range cfg.Chains.List {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			return errors.New("chains.list contains an empty entry")
		}
		if seen[c] {
			return fmt.Errorf("duplicate chain %q", c)
		}
		seen[c] = true
	}
	if len(cfg.Sources.Price) == 0 {
		return errors.New("at least one price source is required")
	}
	for _, s := range cfg.Sources.Price {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("price source %q missing name or url", s.Name)
		}
	}
	if cfg.Codec.Decimals != 6 && cfg.Codec.Decimals != 18 {
		return fmt.Errorf("codec.decimals must be 6 or 18, got %d", cfg.Codec.Decimals)
	}
	return nil
}
