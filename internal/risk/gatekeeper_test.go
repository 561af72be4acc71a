package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/config"
	"quorum/internal/decision"
	"quorum/internal/exchange"
)

func riskCfg() config.RiskConfig {
	return config.RiskConfig{
		MaxExposurePct:        0.5,
		CorrelationThreshold:  0.7,
		CorrelationWindow:     50,
		MaxCorrelatedExposure: 0.3,
		MaxDrawdownPct:        0.05,
		MaxOpenPositions:      3,
		RiskPerTradePct:       0.01,
	}
}

func openDecision(symbol string, size, entry, stop, tp float64) decision.Decision {
	return decision.Decision{
		ID:         "d1",
		Symbol:     symbol,
		Action:     decision.ActionOpenLong,
		Confidence: 0.8,
		EntryPrice: entry,
		Size:       &size,
		StopLoss:   &stop,
		TakeProfit: &tp,
	}
}

func portfolio(total float64) exchange.PortfolioState {
	return exchange.PortfolioState{
		Balance:    exchange.Balance{StakeCurrency: "USDT", Total: total, Available: total},
		PeakEquity: total,
		FetchedAt:  time.Now(),
	}
}

type fixedReturns struct {
	series map[string][]float64
	err    error
}

func (f *fixedReturns) Returns(_ context.Context, symbol string, _ int) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.series[symbol], nil
}

func TestGatekeeperApprovesWithinLimits(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)

	// 仓位 1 × 100 = 100 名义，风险 = 1 × 2 = 20 > 预算 100？否：20 < 100
	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	assert.True(t, v.Approved)
	assert.Empty(t, v.Reasons)
	assert.InDelta(t, 1.0, v.AdjustedSize, 1e-9)
}

func TestGatekeeperDrawdownIsFractionOfPeakNotDollars(t *testing.T) {
	// 峰值 10000，当前 9200：回撤 8%，上限 5% -> 拒绝。
	// 800 美元绝不能拿去和 0.05 比较——那样永远拒绝不了。
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(9200)
	ps.PeakEquity = 10000

	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonDrawdownExceeded)
	assert.NotEmpty(t, v.Detail)
}

func TestGatekeeperDrawdownJustUnderLimit(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(9600) // 回撤 4% < 5%
	ps.PeakEquity = 10000

	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	assert.True(t, v.Approved)
}

func TestGatekeeperExposureCeiling(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)
	// 名义 60 × 100 = 6000 > 10000 × 0.5
	v := g.Check(context.Background(), openDecision("BTC/USDT", 60, 100, 98, 104), &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonExposureExceeded)
}

func TestGatekeeperMaxPositions(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)
	for i := 0; i < 3; i++ {
		ps.Positions = append(ps.Positions, exchange.Position{
			ID: fmt.Sprintf("p%d", i), Symbol: fmt.Sprintf("C%d/USDT", i),
			Side: "long", Amount: 0.01, EntryPrice: 100, CurrentPrice: 100,
		})
	}
	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonMaxPositions)
}

func TestGatekeeperShrinksOversizedPosition(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)
	// 风险 = 30 × |100-98| = 60 < 预算 100 ✔；改成 30 × |100-95| = 150 > 100
	v := g.Check(context.Background(), openDecision("BTC/USDT", 30, 100, 95, 110), &ps)
	require.True(t, v.Approved)
	assert.Less(t, v.AdjustedSize, 30.0, "超预算仓位必须被缩小")
	assert.InDelta(t, 20.0, v.AdjustedSize, 1e-9) // 100 / 5
}

func TestGatekeeperNeverEnlarges(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)
	v := g.Check(context.Background(), openDecision("BTC/USDT", 2, 100, 98, 104), &ps)
	require.True(t, v.Approved)
	assert.LessOrEqual(t, v.AdjustedSize, 2.0)
}

func TestGatekeeperCorrelatedExposure(t *testing.T) {
	// BTC 与 ETH 完全同向波动：候选仓位与现有 ETH 仓位算进同一桶
	series := make([]float64, 60)
	for i := range series {
		if i%2 == 0 {
			series[i] = 0.01
		} else {
			series[i] = -0.01
		}
	}
	returns := &fixedReturns{series: map[string][]float64{
		"BTC/USDT": series,
		"ETH/USDT": series,
	}}
	g := NewGatekeeper(riskCfg(), returns, time.Minute)
	ps := portfolio(10000)
	ps.Positions = []exchange.Position{{
		ID: "p1", Symbol: "ETH/USDT", Side: "long",
		Amount: 1, EntryPrice: 2000, CurrentPrice: 2000,
	}}
	// 相关桶 = 2000 + 1100 = 3100 > 10000 × 0.3
	v := g.Check(context.Background(), openDecision("BTC/USDT", 11, 100, 98, 104), &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonCorrelatedExposure)
}

func TestGatekeeperCorrelationFetchErrorFailsClosed(t *testing.T) {
	returns := &fixedReturns{err: fmt.Errorf("upstream down")}
	g := NewGatekeeper(riskCfg(), returns, time.Minute)
	ps := portfolio(10000)
	ps.Positions = []exchange.Position{{
		ID: "p1", Symbol: "ETH/USDT", Side: "long",
		Amount: 0.1, EntryPrice: 2000, CurrentPrice: 2000,
	}}
	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonInternalError, "数据拉不到必须拒绝而不是跳过检查")
}

func TestGatekeeperStalePortfolio(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)
	ps.FetchedAt = time.Now().Add(-5 * time.Minute)

	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonStalePortfolio)
}

func TestGatekeeperInvalidDecision(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(10000)
	d := openDecision("BTC/USDT", 1, 100, 98, 104)
	d.StopLoss = nil

	v := g.Check(context.Background(), d, &ps)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonInvalidDecision)
}

func TestGatekeeperNilPortfolioRejected(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), nil)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Reasons, ReasonInternalError)
}

func TestGatekeeperHoldAndCloseBypassOpeningChecks(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(9000) // 回撤 10%（若有峰值 10000）
	ps.PeakEquity = 10000

	hold := decision.Decision{ID: "h", Symbol: "BTC/USDT", Action: decision.ActionHold}
	v := g.Check(context.Background(), hold, &ps)
	assert.True(t, v.Approved, "hold 不增加风险")

	amount := 0.5
	closeD := decision.Decision{ID: "c", Symbol: "BTC/USDT", Action: decision.ActionCloseLong, Size: &amount}
	v = g.Check(context.Background(), closeD, &ps)
	assert.True(t, v.Approved, "平仓降低风险，回撤期也必须放行")
	assert.InDelta(t, 0.5, v.AdjustedSize, 1e-9)
}

func TestGatekeeperRejectedVerdictAlwaysHasReasons(t *testing.T) {
	g := NewGatekeeper(riskCfg(), nil, time.Minute)
	ps := portfolio(9200)
	ps.PeakEquity = 10000

	v := g.Check(context.Background(), openDecision("BTC/USDT", 1, 100, 98, 104), &ps)
	if !v.Approved {
		assert.NotEmpty(t, v.Reasons, "拒绝判决必须带机器可读原因码")
	}
}
