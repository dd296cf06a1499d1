package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[assets]
list = ["WETH"]

[chains]
list = ["ethereum", "polygon"]

[[sources.price]]
name = "dex"
url = "http://localhost:9000"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.App.CycleIntervalSec != 30 {
		t.Errorf("cycle interval = %d, want 30", cfg.App.CycleIntervalSec)
	}
	if cfg.Arbitrage.MinDiffPct != 3.0 {
		t.Errorf("min diff = %v, want 3.0", cfg.Arbitrage.MinDiffPct)
	}
	if cfg.Codec.Decimals != 6 {
		t.Errorf("decimals = %d, want 6", cfg.Codec.Decimals)
	}
	if cfg.Risk.MaxTotalExposure != 100000 {
		t.Errorf("max exposure = %v, want 100000", cfg.Risk.MaxTotalExposure)
	}
}

func TestLoadRejectsSingleChain(t *testing.T) {
	body := `
[assets]
list = ["WETH"]

[chains]
list = ["ethereum"]

[[sources.price]]
name = "dex"
url = "http://localhost:9000"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Error("one chain must be rejected")
	}
}

func TestLoadRejectsDuplicateChains(t *testing.T) {
	body := `
[assets]
list = ["WETH"]

[chains]
list = ["ethereum", "Ethereum"]

[[sources.price]]
name = "dex"
url = "http://localhost:9000"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Error("duplicate chains must be rejected")
	}
}

func TestLoadRejectsBadDecimals(t *testing.T) {
	body := minimalConfig + `
[codec]
decimals = 8
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Error("decimals other than 6 or 18 must be rejected")
	}
}

func TestLoadRejectsMissingSources(t *testing.T) {
	body := `
[assets]
list = ["WETH"]

[chains]
list = ["ethereum", "polygon"]
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Error("empty source list must be rejected")
	}
}
