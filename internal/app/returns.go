package app

import (
	"context"
	"fmt"

	"quorum/internal/market"
	"quorum/internal/risk"
)

// marketReturns 把行情来源适配成风控需要的收益序列。
// 多拉一根K线：n 个收益需要 n+1 个收盘价。
type marketReturns struct {
	source    market.Source
	timeframe string
}

var _ risk.ReturnsProvider = (*marketReturns)(nil)

func (m *marketReturns) Returns(ctx context.Context, symbol string, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("returns window 必须为正")
	}
	candles, err := m.source.FetchHistory(ctx, symbol, m.timeframe, window+1)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	return risk.LogReturns(closes), nil
}
