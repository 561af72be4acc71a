package config

import "strings"

// Config 是 Quorum 的主配置载体。构造后视为只读；热更新通过
// operator 通道整体替换，绝不原地修改。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	Agent    AgentConfig    `toml:"agent"`
	Ensemble EnsembleConfig `toml:"ensemble"`
	Risk     RiskConfig     `toml:"risk"`
	Executor ExecutorConfig `toml:"executor"`
	Audit    AuditConfig    `toml:"audit"`
	Learn    LearnConfig    `toml:"learn"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	DumpPath     string `toml:"provider_dump_path"`
	ProviderDump bool   `toml:"provider_dump"`
}

// MarketConfig 描述行情来源与快照口径。
type MarketConfig struct {
	Name             string   `toml:"name"`
	RESTBaseURL      string   `toml:"rest_base_url"`
	Symbols          []string `toml:"symbols"`
	Timeframes       []string `toml:"timeframes"`
	BaseTimeframe    string   `toml:"base_timeframe"`
	WarmupBars       int      `toml:"warmup_bars"`
	FreshnessSeconds int      `toml:"freshness_seconds"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
}

// AgentConfig 控制主循环节奏与恢复策略。
type AgentConfig struct {
	CycleInterval       string `toml:"cycle_interval"`
	CycleOffsetSeconds  int    `toml:"cycle_offset_seconds"`
	RunImmediately      bool   `toml:"run_immediately"`
	MaxConsecutiveFails int    `toml:"max_consecutive_failures"`
	BackoffSeconds      int    `toml:"recover_backoff_seconds"`
	BackoffMaxSeconds   int    `toml:"recover_backoff_max_seconds"`
	RejectCooldownCycle int    `toml:"reject_cooldown_cycles"`
}

// EnsembleConfig 包含所有参与投票的 Provider 及投票参数。
type EnsembleConfig struct {
	Providers            []ProviderConfig          `toml:"providers"`
	Presets              map[string]ProviderPreset `toml:"presets"`
	ProfilesPath         string                    `toml:"profiles_path"`
	TimeoutSeconds       int                       `toml:"timeout_seconds"`
	GlobalTimeoutFactor  float64                   `toml:"global_timeout_factor"`
	SingleConfidenceCap  float64                   `toml:"single_confidence_cap"`
	DefaultStopPct       float64                   `toml:"default_stop_pct"`
	TakeProfitRatio      float64                   `toml:"take_profit_ratio"`
	MinStopDistancePct   float64                   `toml:"min_stop_distance_pct"`
	RiskPerTradePct      float64                   `toml:"risk_per_trade_pct"`
	BreakerFailThreshold int                       `toml:"breaker_fail_threshold"`
	BreakerResetSeconds  int                       `toml:"breaker_reset_seconds"`
}

// ProviderPreset 描述可复用的 API 连接配置。
type ProviderPreset struct {
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
}

// ProviderConfig 代表一个最终参与投票的 Provider 条目。
type ProviderConfig struct {
	ID             string            `toml:"id"`
	Kind           string            `toml:"kind"` // "openai_chat" | "rule_trend" | "rule_meanrev"
	Preset         string            `toml:"preset"`
	Enabled        bool              `toml:"enabled"`
	Weight         float64           `toml:"weight"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	Headers        map[string]string `toml:"headers"`
}

// ResolvedProviderConfig 是合并预设后的最终 Provider 配置。
type ResolvedProviderConfig struct {
	ID             string
	Kind           string
	Enabled        bool
	Weight         float64
	TimeoutSeconds int
	APIURL         string
	APIKey         string
	Model          string
	Headers        map[string]string
}

// RiskConfig 是风控闸门的全部阈值。
type RiskConfig struct {
	MaxExposurePct        float64 `toml:"max_exposure_pct"`
	CorrelationThreshold  float64 `toml:"correlation_threshold"`
	CorrelationWindow     int     `toml:"correlation_window"`
	MaxCorrelatedExposure float64 `toml:"max_correlated_exposure_pct"`
	MaxDrawdownPct        float64 `toml:"max_drawdown_pct"`
	MaxOpenPositions      int     `toml:"max_open_positions"`
	RiskPerTradePct       float64 `toml:"risk_per_trade_pct"`
}

// ExecutorConfig 控制（模拟）执行引擎。
type ExecutorConfig struct {
	Mode           string  `toml:"mode"` // 目前仅 "paper"
	InitialBalance float64 `toml:"initial_balance"`
	SlippagePct    float64 `toml:"slippage_pct"`
	Leverage       int     `toml:"leverage"`
}

type AuditConfig struct {
	DBPath     string `toml:"db_path"`
	ReportPath string `toml:"report_path"`
}

type LearnConfig struct {
	DBPath string `toml:"db_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled       bool   `toml:"enabled"`
	BotToken      string `toml:"bot_token"`
	ChatID        string `toml:"chat_id"`
	AttachReport  bool   `toml:"attach_report"`
	TimeoutSecond int    `toml:"timeout_seconds"`
}

// ResolveProviderConfigs 合并预设并过滤未启用条目。
func (e *EnsembleConfig) ResolveProviderConfigs() ([]ResolvedProviderConfig, error) {
	out := make([]ResolvedProviderConfig, 0, len(e.Providers))
	for _, p := range e.Providers {
		r := ResolvedProviderConfig{
			ID:             strings.TrimSpace(p.ID),
			Kind:           strings.ToLower(strings.TrimSpace(p.Kind)),
			Enabled:        p.Enabled,
			Weight:         p.Weight,
			TimeoutSeconds: p.TimeoutSeconds,
			APIURL:         strings.TrimSpace(p.APIURL),
			APIKey:         strings.TrimSpace(p.APIKey),
			Model:          strings.TrimSpace(p.Model),
			Headers:        map[string]string{},
		}
		if preset := strings.TrimSpace(p.Preset); preset != "" {
			base, ok := e.Presets[preset]
			if !ok {
				return nil, &UnknownPresetError{ProviderID: r.ID, Preset: preset}
			}
			if r.APIURL == "" {
				r.APIURL = strings.TrimSpace(base.APIURL)
			}
			if r.APIKey == "" {
				r.APIKey = strings.TrimSpace(base.APIKey)
			}
			for k, v := range base.Headers {
				r.Headers[k] = v
			}
		}
		for k, v := range p.Headers {
			r.Headers[k] = v
		}
		if r.TimeoutSeconds <= 0 {
			r.TimeoutSeconds = e.TimeoutSeconds
		}
		out = append(out, r)
	}
	return out, nil
}

// UnknownPresetError 表示 provider 引用了不存在的预设。
type UnknownPresetError struct {
	ProviderID string
	Preset     string
}

func (e *UnknownPresetError) Error() string {
	return "ensemble.providers." + e.ProviderID + " 引用了未定义的预设: " + e.Preset
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
