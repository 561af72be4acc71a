package provider

import (
	"context"
	"fmt"
	"math"

	"quorum/internal/decision"
	"quorum/internal/market"

	talib "github.com/markcheno/go-talib"
)

// TrendProvider 是确定性的 EMA 趋势跟随 Provider：三线多头排列看多、
// 空头排列看空，其余观望。它保证集成在没有任何远端模型时也能投票，
// 同时给测试提供可复现实例。
type TrendProvider struct {
	id       string
	interval string
	fast     int
	mid      int
	slow     int
	atr      int
}

func NewTrendProvider(id, interval string) *TrendProvider {
	return &TrendProvider{
		id:       id,
		interval: interval,
		fast:     8,
		mid:      21,
		slow:     55,
		atr:      14,
	}
}

func (p *TrendProvider) ID() string { return p.id }

func (p *TrendProvider) Propose(_ context.Context, input decision.Input) (decision.ProviderVote, error) {
	interval := p.interval
	if interval == "" {
		interval = input.BaseTimeframe
	}
	candles := input.Snapshot.Candles(interval)
	if len(candles) < p.slow+1 {
		return decision.ProviderVote{}, fmt.Errorf("K线不足: 需要 %d 根，只有 %d 根", p.slow+1, len(candles))
	}

	closes := market.Closes(candles)
	emaFast := talib.Ema(closes, p.fast)
	emaMid := talib.Ema(closes, p.mid)
	emaSlow := talib.Ema(closes, p.slow)

	last := len(closes) - 1
	price := closes[last]
	f, m, s := emaFast[last], emaMid[last], emaSlow[last]
	if s <= 0 {
		return decision.ProviderVote{}, fmt.Errorf("EMA 计算异常")
	}

	var action decision.Action
	var rationale string
	switch {
	case f > m && m > s && price > f:
		action = decision.ActionBuy
		rationale = fmt.Sprintf("EMA%d>%d>%d 多头排列，价格 %.4f 在快线上方", p.fast, p.mid, p.slow, price)
	case f < m && m < s && price < f:
		action = decision.ActionSell
		rationale = fmt.Sprintf("EMA%d<%d<%d 空头排列，价格 %.4f 在快线下方", p.fast, p.mid, p.slow, price)
	default:
		action = decision.ActionHold
		rationale = "EMA 排列未形成趋势"
	}

	// 置信度随快慢线间距放大，封顶 0.9
	confidence := 0.3
	if action != decision.ActionHold {
		spread := math.Abs(f-s) / s
		confidence = math.Min(0.5+spread*20, 0.9)
	}

	stopPct := p.atrStopPct(candles)
	return decision.ProviderVote{
		Action:      action,
		Confidence:  confidence,
		Rationale:   rationale,
		StopLossPct: stopPct,
	}, nil
}

// atrStopPct 用 ATR 给出建议止损距离（1.5×ATR 相对最新收盘价）。
func (p *TrendProvider) atrStopPct(candles []market.Candle) float64 {
	if len(candles) < p.atr+1 {
		return 0
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	atr := talib.Atr(highs, lows, closes, p.atr)
	last := len(atr) - 1
	if atr[last] <= 0 || closes[last] <= 0 {
		return 0
	}
	return atr[last] * 1.5 / closes[last]
}
