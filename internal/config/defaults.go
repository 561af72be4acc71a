package config

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9992"
	defaultAppLogPath         = "/data/logs/quorum-live.log"
	defaultAppDumpPath        = "/data/logs/quorum-providers.log"
	defaultMarketName         = "binance"
	defaultMarketREST         = "https://fapi.binance.com"
	defaultMarketBaseTF       = "15m"
	defaultMarketWarmupBars   = 200
	defaultMarketFreshness    = 180
	defaultMarketTimeout      = 15
	defaultAgentInterval      = "15m"
	defaultAgentOffset        = 10
	defaultAgentMaxFails      = 5
	defaultAgentBackoff       = 30
	defaultAgentBackoffMax    = 300
	defaultAgentRejectCool    = 2
	defaultEnsembleTimeout    = 60
	defaultEnsembleGlobalMul  = 1.5
	defaultEnsembleSingleCap  = 0.6
	defaultEnsembleStopPct    = 0.02
	defaultEnsembleTPRatio    = 2.0
	defaultEnsembleMinStopPct = 0.003
	defaultEnsembleRiskPct    = 0.01
	defaultBreakerThreshold   = 3
	defaultBreakerReset       = 300
	defaultRiskMaxExposure    = 0.5
	defaultRiskCorrThreshold  = 0.7
	defaultRiskCorrWindow     = 96
	defaultRiskCorrExposure   = 0.3
	defaultRiskMaxDrawdown    = 0.1
	defaultRiskMaxPositions   = 3
	defaultRiskPerTrade       = 0.01
	defaultExecutorMode       = "paper"
	defaultExecutorBalance    = 10000
	defaultExecutorSlippage   = 0.0005
	defaultExecutorLeverage   = 1
	defaultAuditDBPath        = "/data/live/audit.db"
	defaultAuditReportPath    = "/data/live/report.html"
	defaultLearnDBPath        = "/data/live/outcomes.db"
	defaultProfilesPath       = "configs/profiles.yaml"
)

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && *target == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Agent.applyDefaults(keys)
	c.Ensemble.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Executor.applyDefaults(keys)
	c.Audit.applyDefaults(keys)
	c.Learn.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.provider_dump_path", &a.DumpPath, defaultAppDumpPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.name", &m.Name, defaultMarketName),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.base_timeframe", &m.BaseTimeframe, defaultMarketBaseTF),
		intFieldDefault("market.warmup_bars", &m.WarmupBars, defaultMarketWarmupBars),
		intFieldDefault("market.freshness_seconds", &m.FreshnessSeconds, defaultMarketFreshness),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		fieldDefault{
			key:   "market.timeframes",
			need:  func() bool { return len(m.Timeframes) == 0 },
			apply: func() { m.Timeframes = []string{"15m", "1h", "4h"} },
		},
	)
}

func (a *AgentConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("agent.cycle_interval", &a.CycleInterval, defaultAgentInterval),
		intFieldDefault("agent.cycle_offset_seconds", &a.CycleOffsetSeconds, defaultAgentOffset),
		intFieldDefault("agent.max_consecutive_failures", &a.MaxConsecutiveFails, defaultAgentMaxFails),
		intFieldDefault("agent.recover_backoff_seconds", &a.BackoffSeconds, defaultAgentBackoff),
		intFieldDefault("agent.recover_backoff_max_seconds", &a.BackoffMaxSeconds, defaultAgentBackoffMax),
		intFieldDefault("agent.reject_cooldown_cycles", &a.RejectCooldownCycle, defaultAgentRejectCool),
	)
}

func (e *EnsembleConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ensemble.profiles_path", &e.ProfilesPath, defaultProfilesPath),
		intFieldDefault("ensemble.timeout_seconds", &e.TimeoutSeconds, defaultEnsembleTimeout),
		floatFieldDefault("ensemble.global_timeout_factor", &e.GlobalTimeoutFactor, defaultEnsembleGlobalMul),
		floatFieldDefault("ensemble.single_confidence_cap", &e.SingleConfidenceCap, defaultEnsembleSingleCap),
		floatFieldDefault("ensemble.default_stop_pct", &e.DefaultStopPct, defaultEnsembleStopPct),
		floatFieldDefault("ensemble.take_profit_ratio", &e.TakeProfitRatio, defaultEnsembleTPRatio),
		floatFieldDefault("ensemble.min_stop_distance_pct", &e.MinStopDistancePct, defaultEnsembleMinStopPct),
		floatFieldDefault("ensemble.risk_per_trade_pct", &e.RiskPerTradePct, defaultEnsembleRiskPct),
		intFieldDefault("ensemble.breaker_fail_threshold", &e.BreakerFailThreshold, defaultBreakerThreshold),
		intFieldDefault("ensemble.breaker_reset_seconds", &e.BreakerResetSeconds, defaultBreakerReset),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_exposure_pct", &r.MaxExposurePct, defaultRiskMaxExposure),
		floatFieldDefault("risk.correlation_threshold", &r.CorrelationThreshold, defaultRiskCorrThreshold),
		intFieldDefault("risk.correlation_window", &r.CorrelationWindow, defaultRiskCorrWindow),
		floatFieldDefault("risk.max_correlated_exposure_pct", &r.MaxCorrelatedExposure, defaultRiskCorrExposure),
		floatFieldDefault("risk.max_drawdown_pct", &r.MaxDrawdownPct, defaultRiskMaxDrawdown),
		intFieldDefault("risk.max_open_positions", &r.MaxOpenPositions, defaultRiskMaxPositions),
		floatFieldDefault("risk.risk_per_trade_pct", &r.RiskPerTradePct, defaultRiskPerTrade),
	)
}

func (e *ExecutorConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("executor.mode", &e.Mode, defaultExecutorMode),
		floatFieldDefault("executor.initial_balance", &e.InitialBalance, defaultExecutorBalance),
		floatFieldDefault("executor.slippage_pct", &e.SlippagePct, defaultExecutorSlippage),
		intFieldDefault("executor.leverage", &e.Leverage, defaultExecutorLeverage),
	)
}

func (a *AuditConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("audit.db_path", &a.DBPath, defaultAuditDBPath),
		stringFieldDefault("audit.report_path", &a.ReportPath, defaultAuditReportPath),
	)
}

func (l *LearnConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("learn.db_path", &l.DBPath, defaultLearnDBPath),
	)
}
