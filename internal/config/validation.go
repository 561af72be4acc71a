package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验，失败直接拒绝启动。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.Ensemble.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Executor.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	if strings.TrimSpace(m.BaseTimeframe) == "" {
		return fmt.Errorf("market.base_timeframe cannot be empty")
	}
	found := false
	for _, tf := range m.Timeframes {
		if strings.EqualFold(strings.TrimSpace(tf), m.BaseTimeframe) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("market.timeframes must contain base_timeframe %q", m.BaseTimeframe)
	}
	if m.FreshnessSeconds <= 0 {
		return fmt.Errorf("market.freshness_seconds must be > 0")
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if a.MaxConsecutiveFails <= 0 {
		return fmt.Errorf("agent.max_consecutive_failures must be > 0")
	}
	if a.BackoffSeconds <= 0 || a.BackoffMaxSeconds < a.BackoffSeconds {
		return fmt.Errorf("agent recover backoff invalid: %d..%d", a.BackoffSeconds, a.BackoffMaxSeconds)
	}
	return nil
}

func (e *EnsembleConfig) validate() error {
	providers, err := e.ResolveProviderConfigs()
	if err != nil {
		return err
	}
	enabled := 0
	ids := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p.ID == "" {
			return fmt.Errorf("ensemble.providers contains entry without id")
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("ensemble.providers duplicate id: %s", p.ID)
		}
		ids[p.ID] = struct{}{}
		switch p.Kind {
		case "openai_chat":
			if p.Enabled && strings.TrimSpace(p.Model) == "" {
				return fmt.Errorf("ensemble.providers.%s missing model", p.ID)
			}
			if p.Enabled && strings.TrimSpace(p.APIURL) == "" {
				return fmt.Errorf("ensemble.providers.%s missing api_url (can inherit from preset)", p.ID)
			}
		case "rule_trend", "rule_meanrev":
			// 本地规则 Provider 不需要远端配置
		default:
			return fmt.Errorf("ensemble.providers.%s unknown kind: %s", p.ID, p.Kind)
		}
		if p.Weight < 0 {
			return fmt.Errorf("ensemble.providers.%s weight must be >= 0", p.ID)
		}
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("ensemble.providers requires at least one enabled provider")
	}
	if e.SingleConfidenceCap <= 0 || e.SingleConfidenceCap > 1 {
		return fmt.Errorf("ensemble.single_confidence_cap must be in (0,1]")
	}
	if e.GlobalTimeoutFactor < 1 {
		return fmt.Errorf("ensemble.global_timeout_factor must be >= 1")
	}
	if e.MinStopDistancePct <= 0 || e.MinStopDistancePct >= e.DefaultStopPct {
		return fmt.Errorf("ensemble.min_stop_distance_pct must be in (0, default_stop_pct)")
	}
	if e.RiskPerTradePct <= 0 || e.RiskPerTradePct >= 1 {
		return fmt.Errorf("ensemble.risk_per_trade_pct must be in (0,1)")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	type pctField struct {
		name string
		val  float64
	}
	// 所有比例阈值统一用 0~1 小数表达，禁止混入绝对金额或百分数形式。
	for _, f := range []pctField{
		{"risk.max_exposure_pct", r.MaxExposurePct},
		{"risk.correlation_threshold", r.CorrelationThreshold},
		{"risk.max_correlated_exposure_pct", r.MaxCorrelatedExposure},
		{"risk.max_drawdown_pct", r.MaxDrawdownPct},
		{"risk.risk_per_trade_pct", r.RiskPerTradePct},
	} {
		if f.val <= 0 || f.val > 1 {
			return fmt.Errorf("%s must be a fraction in (0,1], got %v", f.name, f.val)
		}
	}
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	if r.CorrelationWindow < 10 {
		return fmt.Errorf("risk.correlation_window must be >= 10")
	}
	return nil
}

func (e *ExecutorConfig) validate() error {
	if strings.ToLower(strings.TrimSpace(e.Mode)) != "paper" {
		return fmt.Errorf("executor.mode only supports \"paper\" for now, got %q", e.Mode)
	}
	if e.InitialBalance <= 0 {
		return fmt.Errorf("executor.initial_balance must be > 0")
	}
	if e.Leverage <= 0 {
		return fmt.Errorf("executor.leverage must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
