package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"quorum/internal/config"
	"quorum/internal/decision"
	"quorum/internal/exchange"
	"quorum/internal/logger"
)

// Gatekeeper 是执行前的最后一道闸门。它对每个决策独立裁决，不在
// 调用之间保留任何状态；所有事实都来自刚刚重新拉取的 PortfolioState。
//
// 失败策略是 fail-closed：任何内部错误（相关性数据拉不到、panic、
// 非法输入）都产出拒绝判决，绝不放行。
type Gatekeeper struct {
	cfg     config.RiskConfig
	returns ReturnsProvider
	// maxAge 是 PortfolioState 允许的最大年龄，超龄视为过期数据拒绝。
	maxAge time.Duration

	nowFn func() time.Time
}

// NewGatekeeper 构造闸门。returns 可为 nil，此时跳过相关性检查
// （没有数据来源时宁可少一道检查也不能误放行——其余检查照常执行）。
func NewGatekeeper(cfg config.RiskConfig, returns ReturnsProvider, maxAge time.Duration) *Gatekeeper {
	return &Gatekeeper{cfg: cfg, returns: returns, maxAge: maxAge, nowFn: time.Now}
}

// Check 按固定顺序执行全部风控检查，返回唯一判决。
// 顺序：决策合法性 → 组合数据新鲜度 → 总敞口 → 相关敞口 → 回撤 →
// 持仓数上限 → 单笔风险预算（只缩不放）。
func (g *Gatekeeper) Check(ctx context.Context, d decision.Decision, ps *exchange.PortfolioState) (v Verdict) {
	now := g.nowFn()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("风控闸门 panic，按拒绝处理: %v", r)
			v = rejected(now, fmt.Sprintf("internal panic: %v", r), ReasonInternalError)
		}
	}()

	if err := d.Validate(); err != nil {
		return rejected(now, fmt.Sprintf("决策非法: %v", err), ReasonInvalidDecision)
	}
	if ps == nil {
		return rejected(now, "缺少组合状态", ReasonInternalError)
	}

	// hold 与平仓不增加风险，直接放行。平仓量按决策携带的 Size 执行。
	if !d.Action.IsOpening() {
		size := 0.0
		if d.Size != nil {
			size = *d.Size
		}
		return approved(size, now)
	}

	if g.maxAge > 0 && now.Sub(ps.FetchedAt) > g.maxAge {
		return rejected(now, fmt.Sprintf("组合快照已过期 %s", now.Sub(ps.FetchedAt).Truncate(time.Second)), ReasonStalePortfolio)
	}

	equity := ps.Equity()
	if equity <= 0 {
		return rejected(now, "账户净值非正", ReasonInternalError)
	}
	size := *d.Size
	entry := d.EntryPrice
	if size <= 0 || entry <= 0 {
		return rejected(now, "开仓决策缺少有效仓位或入场价", ReasonInvalidDecision)
	}
	newNotional := size * entry

	// 1. 总敞口上限
	if limit := equity * g.cfg.MaxExposurePct; ps.TotalExposure()+newNotional > limit {
		return rejected(now,
			fmt.Sprintf("总敞口 %.2f + %.2f 超过上限 %.2f", ps.TotalExposure(), newNotional, limit),
			ReasonExposureExceeded)
	}

	// 2. 相关敞口上限
	if verdict, blocked := g.checkCorrelation(ctx, d, ps, equity, newNotional, now); blocked {
		return verdict
	}

	// 3. 回撤上限。回撤永远按峰值比例比较，阈值也是比例。
	if dd := CurrentDrawdown(ps); dd >= g.cfg.MaxDrawdownPct {
		return rejected(now,
			fmt.Sprintf("当前回撤 %.2f%% 已达上限 %.2f%%", dd*100, g.cfg.MaxDrawdownPct*100),
			ReasonDrawdownExceeded)
	}

	// 4. 持仓数上限
	if g.cfg.MaxOpenPositions > 0 && len(ps.Positions) >= g.cfg.MaxOpenPositions {
		return rejected(now,
			fmt.Sprintf("已持仓 %d 个，达到上限 %d", len(ps.Positions), g.cfg.MaxOpenPositions),
			ReasonMaxPositions)
	}

	// 5. 单笔风险预算：超预算就缩仓位，永不放大。
	adjusted, err := g.capPerTradeRisk(d, size, entry, ps.Balance.Total)
	if err != nil {
		return rejected(now, err.Error(), ReasonInternalError)
	}
	if adjusted < size {
		logger.Infof("风控缩仓 %s: %.6f -> %.6f", d.Symbol, size, adjusted)
	}
	return approved(adjusted, now)
}

// checkCorrelation 把候选仓位与每个相关性达标的现有持仓合并计算敞口。
// 数据拉取失败按内部错误拒绝；序列重叠不足按不相关处理。
func (g *Gatekeeper) checkCorrelation(ctx context.Context, d decision.Decision, ps *exchange.PortfolioState, equity, newNotional float64, now time.Time) (Verdict, bool) {
	if g.returns == nil || g.cfg.CorrelationThreshold <= 0 || len(ps.Positions) == 0 {
		return Verdict{}, false
	}
	window := g.cfg.CorrelationWindow
	if window <= 0 {
		window = 50
	}
	candidate, err := g.returns.Returns(ctx, d.Symbol, window)
	if err != nil {
		return rejected(now, fmt.Sprintf("拉取 %s 收益序列失败: %v", d.Symbol, err), ReasonInternalError), true
	}

	correlated := newNotional
	for _, p := range ps.Positions {
		if p.Symbol == d.Symbol {
			correlated += p.Notional()
			continue
		}
		other, err := g.returns.Returns(ctx, p.Symbol, window)
		if err != nil {
			return rejected(now, fmt.Sprintf("拉取 %s 收益序列失败: %v", p.Symbol, err), ReasonInternalError), true
		}
		corr, ok := correlation(candidate, other)
		if ok && math.Abs(corr) >= g.cfg.CorrelationThreshold {
			correlated += p.Notional()
		}
	}
	if limit := equity * g.cfg.MaxCorrelatedExposure; correlated > limit {
		return rejected(now,
			fmt.Sprintf("相关敞口 %.2f 超过上限 %.2f", correlated, limit),
			ReasonCorrelatedExposure), true
	}
	return Verdict{}, false
}

// capPerTradeRisk 检查单笔止损风险是否超出预算，超出则按预算缩仓。
// 返回值永远满足 adjusted <= size。
func (g *Gatekeeper) capPerTradeRisk(d decision.Decision, size, entry, balance float64) (float64, error) {
	if g.cfg.RiskPerTradePct <= 0 || d.StopLoss == nil {
		return size, nil
	}
	stop := decimal.NewFromFloat(*d.StopLoss)
	entryD := decimal.NewFromFloat(entry)
	stopDist := entryD.Sub(stop).Abs()
	if stopDist.IsZero() {
		return 0, fmt.Errorf("止损距离为零，无法核算单笔风险")
	}
	budget := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(g.cfg.RiskPerTradePct))
	used := decimal.NewFromFloat(size).Mul(stopDist)
	if used.LessThanOrEqual(budget) {
		return size, nil
	}
	adjusted, _ := budget.Div(stopDist).Float64()
	if adjusted > size {
		adjusted = size
	}
	return adjusted, nil
}
