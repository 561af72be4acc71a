package app

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/agent"
	"quorum/internal/audit"
	"quorum/internal/config"
	"quorum/internal/decision"
	"quorum/internal/exchange"
	"quorum/internal/executor/paper"
	"quorum/internal/gateway/binance"
	"quorum/internal/learn"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/notifier"
	"quorum/internal/pkg/symbol"
	"quorum/internal/provider"
	"quorum/internal/risk"
	agenthttp "quorum/internal/transport/http"
)

// AppBuilder 把配置翻译成一棵完整的依赖树。每个 build 步骤都可以
// 被测试替换（override 函数字段），这也是不用全局单例的原因。
type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	marketFn    func(*config.Config) (market.Source, *market.SnapshotFetcher, error)
	providersFn func(*config.Config) ([]decision.ProviderAdapter, map[string]float64, map[string]time.Duration, error)
	notifierFn  func(*config.Config) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithConfigWatcher 启用配置文件热更新：文件变更经 operator 通道
// 送进循环，在下一个周期边界生效。
func WithConfigWatcher(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.cfgPath = path }
}

// WithMarketStack 替换行情来源（测试注入假数据用）。
func WithMarketStack(fn func(*config.Config) (market.Source, *market.SnapshotFetcher, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.marketFn = fn }
}

// WithProviders 替换 Provider 集合。
func WithProviders(fn func(*config.Config) ([]decision.ProviderAdapter, map[string]float64, map[string]time.Duration, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.providersFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		marketFn:    buildMarketStack,
		providersFn: buildProviders,
		notifierFn:  buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	cfg.Market.Symbols = normalizeSymbols(cfg.Market.Symbols)

	a := &App{cfg: cfg}

	source, fetcher, err := b.marketFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化行情来源失败: %w", err)
	}
	a.closers = append(a.closers, source.Close)

	providers, weights, timeouts, err := b.providersFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 provider 失败: %w", err)
	}
	engine, err := decision.NewEngine(providers, decision.EngineOptions{
		Weights:          weights,
		Timeouts:         timeouts,
		DefaultTimeout:   time.Duration(cfg.Ensemble.TimeoutSeconds) * time.Second,
		GlobalFactor:     cfg.Ensemble.GlobalTimeoutFactor,
		SingleCap:        cfg.Ensemble.SingleConfidenceCap,
		Sizing:           sizingConfig(cfg),
		BreakerThreshold: cfg.Ensemble.BreakerFailThreshold,
		BreakerReset:     time.Duration(cfg.Ensemble.BreakerResetSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	pricer, _ := source.(exchange.MarkPricer)
	execEngine := paper.NewEngine(cfg.Executor, pricer)

	returns := &marketReturns{source: source, timeframe: cfg.Market.BaseTimeframe}
	freshness := time.Duration(cfg.Market.FreshnessSeconds) * time.Second
	rebuildGate := func(c *config.Config) *risk.Gatekeeper {
		return risk.NewGatekeeper(c.Risk, returns, freshness)
	}
	gate := rebuildGate(cfg)

	var recorder *learn.Recorder
	if cfg.Learn.DBPath != "" {
		recorder, err = learn.NewRecorder(cfg.Learn.DBPath)
		if err != nil {
			return nil, fmt.Errorf("初始化 learn 存储失败: %w", err)
		}
		a.closers = append(a.closers, recorder.Close)
	}

	var auditStore *audit.Store
	var reporter *audit.Reporter
	if cfg.Audit.DBPath != "" {
		auditStore, err = audit.NewStore(cfg.Audit.DBPath)
		if err != nil {
			return nil, fmt.Errorf("初始化审计存储失败: %w", err)
		}
		a.closers = append(a.closers, auditStore.Close)
		if cfg.Audit.ReportPath != "" {
			reporter = audit.NewReporter(auditStore, cfg.Audit.ReportPath)
		}
	}

	notify := b.notifierFn(cfg)
	if cfg.Notify.Telegram.AttachReport && reporter != nil {
		if tg, ok := notify.(*notifier.Telegram); ok {
			notify = &notifier.SnapshotNotifier{Text: tg, Photo: tg, Report: reporter}
		}
	}

	ag, err := agent.New(agent.Deps{
		Config:    cfg,
		Fetcher:   fetcher,
		Portfolio: execEngine,
		Engine:    engine,
		Gate:      gate,
		Executor:  execEngine,
		Recorder:  recorder,
		Audit:     auditStore,
		Notify:    notify,
	}, rebuildGate)
	if err != nil {
		return nil, err
	}
	a.agent = ag

	if cfg.App.HTTPAddr != "" {
		a.http, err = agenthttp.NewServer(agenthttp.ServerConfig{
			Addr:     cfg.App.HTTPAddr,
			Agent:    ag,
			Audit:    auditStore,
			Recorder: recorder,
			Reporter: reporter,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
		}
	}

	if b.cfgPath != "" {
		watcher, err := config.NewWatcher(b.cfgPath, func(next *config.Config) {
			if err := ag.Signal(agent.Signal{Kind: agent.SignalReloadConfig, Config: next}); err != nil {
				logger.Warnf("投递配置热更新失败: %v", err)
			}
		})
		if err != nil {
			logger.Warnf("配置热更新不可用: %v", err)
		} else {
			a.watcher = watcher
		}
	}

	return a, nil
}

func sizingConfig(cfg *config.Config) decision.SizingConfig {
	return decision.SizingConfig{
		RiskPerTradePct: cfg.Ensemble.RiskPerTradePct,
		DefaultStopPct:  cfg.Ensemble.DefaultStopPct,
		MinStopPct:      cfg.Ensemble.MinStopDistancePct,
		TakeProfitRatio: cfg.Ensemble.TakeProfitRatio,
	}
}

func buildMarketStack(cfg *config.Config) (market.Source, *market.SnapshotFetcher, error) {
	source, err := binance.New(binance.Config{
		RESTBaseURL: cfg.Market.RESTBaseURL,
		HTTPTimeout: time.Duration(cfg.Market.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	fetcher := &market.SnapshotFetcher{
		Source:     source,
		Timeframes: cfg.Market.Timeframes,
		Bars:       cfg.Market.WarmupBars,
	}
	return source, fetcher, nil
}

func buildProviders(cfg *config.Config) ([]decision.ProviderAdapter, map[string]float64, map[string]time.Duration, error) {
	resolved, err := cfg.Ensemble.ResolveProviderConfigs()
	if err != nil {
		return nil, nil, nil, err
	}
	profiles, err := provider.LoadProfiles(cfg.Ensemble.ProfilesPath)
	if err != nil {
		return nil, nil, nil, err
	}

	specs := make([]provider.Spec, 0, len(resolved))
	weights := make(map[string]float64, len(resolved))
	timeouts := make(map[string]time.Duration, len(resolved))
	for _, rc := range resolved {
		if !rc.Enabled {
			continue
		}
		specs = append(specs, provider.Spec{
			ID:       rc.ID,
			Kind:     rc.Kind,
			Enabled:  true,
			APIURL:   rc.APIURL,
			APIKey:   rc.APIKey,
			Model:    rc.Model,
			Headers:  rc.Headers,
			Interval: cfg.Market.BaseTimeframe,
			Timeout:  time.Duration(rc.TimeoutSeconds) * time.Second,
		})
		weights[rc.ID] = rc.Weight
		timeouts[rc.ID] = time.Duration(rc.TimeoutSeconds) * time.Second
	}
	adapters, err := provider.BuildFromSpecs(specs, profiles)
	if err != nil {
		return nil, nil, nil, err
	}
	return adapters, weights, timeouts, nil
}

func buildNotifier(cfg *config.Config) notifier.TextNotifier {
	tg := cfg.Notify.Telegram
	if !tg.Enabled || tg.BotToken == "" || tg.ChatID == "" {
		return notifier.Nop{}
	}
	return notifier.NewTelegram(tg.BotToken, tg.ChatID,
		time.Duration(tg.TimeoutSecond)*time.Second)
}

// normalizeSymbols 统一 symbol 书写（BTCUSDT -> BTC/USDT）。
func normalizeSymbols(in []string) []string {
	return symbol.NormalizeList(in)
}
