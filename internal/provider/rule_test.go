package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/decision"
	"quorum/internal/market"
)

// seriesSnapshot 把一条收盘价序列包装成 15m 快照。
func seriesSnapshot(closes []float64) *market.Snapshot {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := int64(i) * 900_000
		candles[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + 899_999,
			Open:      c,
			High:      c * 1.002,
			Low:       c * 0.998,
			Close:     c,
			Volume:    10,
		}
	}
	return &market.Snapshot{
		Symbol:     "BTC/USDT",
		Timeframes: map[string][]market.Candle{"15m": candles},
		CapturedAt: time.Now(),
	}
}

func ruleInput(closes []float64) decision.Input {
	return decision.Input{
		Symbol:        "BTC/USDT",
		Snapshot:      seriesSnapshot(closes),
		BaseTimeframe: "15m",
	}
}

func rampCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestTrendProviderVotesWithTrend(t *testing.T) {
	p := NewTrendProvider("trend", "")

	up, err := p.Propose(context.Background(), ruleInput(rampCloses(80, 100, 1)))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, up.Action)
	assert.Greater(t, up.Confidence, 0.3)
	assert.LessOrEqual(t, up.Confidence, 0.9)
	assert.Greater(t, up.StopLossPct, 0.0, "单边行情下 ATR 止损必须给出")

	down, err := p.Propose(context.Background(), ruleInput(rampCloses(80, 200, -1)))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, down.Action)
}

func TestTrendProviderRequiresWarmup(t *testing.T) {
	p := NewTrendProvider("trend", "")
	_, err := p.Propose(context.Background(), ruleInput(rampCloses(40, 100, 1)))
	assert.Error(t, err)
}

func TestMeanRevProviderOverboughtOversold(t *testing.T) {
	p := NewMeanRevProvider("meanrev", "")

	// 连续下跌 → RSI 触底 → 超卖买入
	oversold, err := p.Propose(context.Background(), ruleInput(rampCloses(40, 200, -1)))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, oversold.Action)
	assert.GreaterOrEqual(t, oversold.Confidence, 0.5)

	// 连续上涨 → RSI 顶格 → 超买卖出
	overbought, err := p.Propose(context.Background(), ruleInput(rampCloses(40, 100, 1)))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, overbought.Action)
}

func TestMeanRevProviderNeutralZoneHolds(t *testing.T) {
	p := NewMeanRevProvider("meanrev", "")

	// 围绕 100 小幅震荡，RSI 落在中性区
	closes := make([]float64, 40)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}
	v, err := p.Propose(context.Background(), ruleInput(closes))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, v.Action)
	assert.Contains(t, v.Rationale, "中性")
}

func TestMeanRevProviderRequiresWarmup(t *testing.T) {
	p := NewMeanRevProvider("meanrev", "")
	_, err := p.Propose(context.Background(), ruleInput(rampCloses(10, 100, 1)))
	assert.Error(t, err)
}
