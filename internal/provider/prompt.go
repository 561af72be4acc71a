package provider

import (
	"fmt"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/market"
)

const promptTailBars = 30

// RenderPrompt 把一次决策输入渲染成给模型的用户提示词。
// 每个周期只带最近一段K线，避免把上下文塞爆。
func RenderPrompt(input decision.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## 交易对: %s\n\n", input.Symbol)

	if input.Snapshot != nil {
		fmt.Fprintf(&b, "快照时间: %s\n\n", input.Snapshot.CapturedAt.UTC().Format(time.RFC3339))
		for _, tf := range input.Snapshot.TimeframeKeys() {
			candles := input.Snapshot.Timeframes[tf]
			writeTimeframe(&b, tf, candles)
		}
	}

	fmt.Fprintf(&b, "## 账户\n余额: %.2f %s\n", input.Account.Total, input.Account.Currency)
	switch input.Position.State {
	case decision.PositionLong:
		fmt.Fprintf(&b, "当前持仓: 多仓 %.6f @ %.4f\n", input.Position.Amount, input.Position.EntryPrice)
	case decision.PositionShort:
		fmt.Fprintf(&b, "当前持仓: 空仓 %.6f @ %.4f\n", input.Position.Amount, input.Position.EntryPrice)
	default:
		b.WriteString("当前持仓: 无\n")
	}
	return b.String()
}

func writeTimeframe(b *strings.Builder, tf string, candles []market.Candle) {
	if len(candles) == 0 {
		return
	}
	tail := candles
	if len(tail) > promptTailBars {
		tail = tail[len(tail)-promptTailBars:]
	}
	last := tail[len(tail)-1]
	lo, hi := tail[0].Low, tail[0].High
	for _, c := range tail {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	fmt.Fprintf(b, "## %s（最近 %d 根）\n", tf, len(tail))
	fmt.Fprintf(b, "最新收盘: %.4f 区间: %.4f ~ %.4f\n", last.Close, lo, hi)
	b.WriteString("close 序列: ")
	for i, c := range tail {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(b, "%.4f", c.Close)
	}
	b.WriteString("\n\n")
}
