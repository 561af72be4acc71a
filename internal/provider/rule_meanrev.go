package provider

import (
	"context"
	"fmt"
	"math"

	"quorum/internal/decision"
	"quorum/internal/market"

	talib "github.com/markcheno/go-talib"
)

// MeanRevProvider 是确定性的 RSI 均值回归 Provider：超卖投 buy、
// 超买投 sell。与趋势 Provider 天然存在分歧，正好用来检验投票裁决。
type MeanRevProvider struct {
	id         string
	interval   string
	period     int
	overbought float64
	oversold   float64
}

func NewMeanRevProvider(id, interval string) *MeanRevProvider {
	return &MeanRevProvider{
		id:         id,
		interval:   interval,
		period:     14,
		overbought: 70,
		oversold:   30,
	}
}

func (p *MeanRevProvider) ID() string { return p.id }

func (p *MeanRevProvider) Propose(_ context.Context, input decision.Input) (decision.ProviderVote, error) {
	interval := p.interval
	if interval == "" {
		interval = input.BaseTimeframe
	}
	candles := input.Snapshot.Candles(interval)
	if len(candles) < p.period*2 {
		return decision.ProviderVote{}, fmt.Errorf("K线不足: 需要 %d 根，只有 %d 根", p.period*2, len(candles))
	}

	closes := market.Closes(candles)
	rsi := talib.Rsi(closes, p.period)
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) {
		return decision.ProviderVote{}, fmt.Errorf("RSI 计算异常")
	}

	var action decision.Action
	var rationale string
	confidence := 0.3
	switch {
	case last <= p.oversold:
		action = decision.ActionBuy
		rationale = fmt.Sprintf("RSI%d=%.1f 超卖（阈值 %.0f）", p.period, last, p.oversold)
		confidence = math.Min(0.5+(p.oversold-last)/p.oversold, 0.9)
	case last >= p.overbought:
		action = decision.ActionSell
		rationale = fmt.Sprintf("RSI%d=%.1f 超买（阈值 %.0f）", p.period, last, p.overbought)
		confidence = math.Min(0.5+(last-p.overbought)/(100-p.overbought), 0.9)
	default:
		action = decision.ActionHold
		rationale = fmt.Sprintf("RSI%d=%.1f 处于中性区", p.period, last)
	}

	return decision.ProviderVote{
		Action:     action,
		Confidence: confidence,
		Rationale:  rationale,
	}, nil
}
