package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
market:
  symbols: ["BTC/USDT"]
ensemble:
  providers:
    - id: trend
      kind: rule_trend
      enabled: true
      weight: 1.0
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "15m", cfg.Market.BaseTimeframe)
	assert.Equal(t, []string{"15m", "1h", "4h"}, cfg.Market.Timeframes)
	assert.Equal(t, 180, cfg.Market.FreshnessSeconds)
	assert.Equal(t, "15m", cfg.Agent.CycleInterval)
	assert.Equal(t, 5, cfg.Agent.MaxConsecutiveFails)
	assert.InDelta(t, 0.6, cfg.Ensemble.SingleConfidenceCap, 1e-9)
	assert.InDelta(t, 0.02, cfg.Ensemble.DefaultStopPct, 1e-9)
	assert.InDelta(t, 0.1, cfg.Risk.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, "paper", cfg.Executor.Mode)
	assert.InDelta(t, 10000.0, cfg.Executor.InitialBalance, 1e-9)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
risk:
  max_drawdown_pct: 0.2
  max_open_positions: 9
`)
	path := writeConfig(t, dir, "config.yaml", minimalYAML+`
include:
  - base.yaml
risk:
  max_open_positions: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cfg.Risk.MaxDrawdownPct, 1e-9, "include 提供的值被继承")
	assert.Equal(t, 4, cfg.Risk.MaxOpenPositions, "主文件最后合并，覆盖 include")
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadRejectsPercentStyleFractions(t *testing.T) {
	dir := t.TempDir()
	// 8 表示 8%？还是 8 倍？一律拒绝，阈值必须是 0~1 的小数
	path := writeConfig(t, dir, "config.yaml", minimalYAML+`
risk:
  max_drawdown_pct: 8
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_drawdown_pct")
}

func TestLoadRejectsMissingSymbols(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
ensemble:
  providers:
    - id: trend
      kind: rule_trend
      enabled: true
      weight: 1.0
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownPreset(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
market:
  symbols: ["BTC/USDT"]
ensemble:
  providers:
    - id: main
      kind: openai_chat
      preset: nope
      enabled: true
      weight: 1.0
      model: deepseek-chat
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestResolveProviderConfigsMergesPreset(t *testing.T) {
	e := EnsembleConfig{
		TimeoutSeconds: 60,
		Presets: map[string]ProviderPreset{
			"deepseek": {
				APIURL:  "https://api.deepseek.com/v1",
				APIKey:  "preset-key",
				Headers: map[string]string{"X-Env": "prod"},
			},
		},
		Providers: []ProviderConfig{
			{
				ID: "main", Kind: "openai_chat", Preset: "deepseek",
				Enabled: true, Weight: 0.5, Model: "deepseek-chat",
				Headers: map[string]string{"X-Env": "dev"},
			},
			{
				ID: "alt", Kind: "openai_chat", Preset: "deepseek",
				Enabled: true, Weight: 0.5, Model: "deepseek-chat",
				APIKey: "own-key", TimeoutSeconds: 10,
			},
		},
	}

	out, err := e.ResolveProviderConfigs()
	require.NoError(t, err)
	require.Len(t, out, 2)

	main := out[0]
	assert.Equal(t, "https://api.deepseek.com/v1", main.APIURL)
	assert.Equal(t, "preset-key", main.APIKey)
	assert.Equal(t, "dev", main.Headers["X-Env"], "条目自带 header 覆盖预设")
	assert.Equal(t, 60, main.TimeoutSeconds, "未设置超时回落到全局值")

	alt := out[1]
	assert.Equal(t, "own-key", alt.APIKey, "条目自带 key 优先于预设")
	assert.Equal(t, 10, alt.TimeoutSeconds)
}

func TestValidateRejectsDuplicateProviderIDs(t *testing.T) {
	cfg := &Config{}
	cfg.Market = MarketConfig{
		Symbols: []string{"BTC/USDT"}, Timeframes: []string{"15m"},
		BaseTimeframe: "15m", FreshnessSeconds: 60,
	}
	cfg.Agent = AgentConfig{MaxConsecutiveFails: 3, BackoffSeconds: 10, BackoffMaxSeconds: 60}
	cfg.Ensemble = EnsembleConfig{
		Providers: []ProviderConfig{
			{ID: "dup", Kind: "rule_trend", Enabled: true, Weight: 1},
			{ID: "dup", Kind: "rule_meanrev", Enabled: true, Weight: 1},
		},
		SingleConfidenceCap: 0.6, GlobalTimeoutFactor: 1.5,
		DefaultStopPct: 0.02, MinStopDistancePct: 0.003, RiskPerTradePct: 0.01,
		TakeProfitRatio: 2,
	}
	cfg.Risk = RiskConfig{
		MaxExposurePct: 0.5, CorrelationThreshold: 0.7, CorrelationWindow: 50,
		MaxCorrelatedExposure: 0.3, MaxDrawdownPct: 0.1, MaxOpenPositions: 3,
		RiskPerTradePct: 0.01,
	}
	cfg.Executor = ExecutorConfig{Mode: "paper", InitialBalance: 1000, Leverage: 1}

	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
