package decision

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SizingConfig 是固定比例风险法的全部参数。
type SizingConfig struct {
	// RiskPerTradePct 单笔愿意亏掉的账户比例（0~1 小数）。
	RiskPerTradePct float64
	// DefaultStopPct Provider 未建议止损时使用的默认止损距离。
	DefaultStopPct float64
	// MinStopPct 止损距离下限，防止零距离止损导致仓位发散。
	MinStopPct float64
	// TakeProfitRatio 止盈距离 = 止损距离 × 该比值。
	TakeProfitRatio float64
}

// Sizing 结果全部以 float64 暴露，内部用 decimal 计算避免长链浮点误差。
type sizingResult struct {
	Size       float64
	StopLoss   float64
	TakeProfit float64
}

// computeSizing 按固定比例风险公式给开仓动作定仓位与止损/止盈：
//
//	风险金额 = 余额 × RiskPerTradePct
//	仓位(基础币) = 风险金额 / (入场价 × 止损距离)
//
// short 的止损在入场价上方、止盈在下方，与 long 相反。
func computeSizing(action Action, entryPrice, balance, stopPct float64, cfg SizingConfig) (sizingResult, error) {
	if !action.IsOpening() {
		return sizingResult{}, fmt.Errorf("%w: action %s does not take sizing", ErrInvalidSizingInput, action)
	}
	if entryPrice <= 0 {
		return sizingResult{}, fmt.Errorf("%w: entry price %.8f", ErrInvalidSizingInput, entryPrice)
	}
	if balance <= 0 {
		return sizingResult{}, fmt.Errorf("%w: balance %.2f", ErrInvalidSizingInput, balance)
	}
	if cfg.RiskPerTradePct <= 0 || cfg.RiskPerTradePct >= 1 {
		return sizingResult{}, fmt.Errorf("%w: risk_per_trade_pct %.4f", ErrInvalidSizingInput, cfg.RiskPerTradePct)
	}

	if stopPct <= 0 {
		stopPct = cfg.DefaultStopPct
	}
	// 止损距离floor：绝不允许比下限更紧的止损
	if cfg.MinStopPct > 0 && stopPct < cfg.MinStopPct {
		stopPct = cfg.MinStopPct
	}
	if stopPct <= 0 || stopPct >= 1 {
		return sizingResult{}, fmt.Errorf("%w: stop distance %.4f", ErrInvalidSizingInput, stopPct)
	}
	tpRatio := cfg.TakeProfitRatio
	if tpRatio <= 0 {
		tpRatio = 1
	}

	entry := decimal.NewFromFloat(entryPrice)
	stopDist := entry.Mul(decimal.NewFromFloat(stopPct))
	tpDist := stopDist.Mul(decimal.NewFromFloat(tpRatio))

	var stop, tp decimal.Decimal
	switch action {
	case ActionOpenLong:
		stop = entry.Sub(stopDist)
		tp = entry.Add(tpDist)
	case ActionOpenShort:
		stop = entry.Add(stopDist)
		tp = entry.Sub(tpDist)
	}
	if stop.Sign() <= 0 || tp.Sign() <= 0 {
		return sizingResult{}, fmt.Errorf("%w: non-positive stop/tp (entry=%.8f stop_pct=%.4f)", ErrInvalidSizingInput, entryPrice, stopPct)
	}

	riskAmount := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(cfg.RiskPerTradePct))
	size := riskAmount.Div(stopDist)
	if size.Sign() <= 0 {
		return sizingResult{}, fmt.Errorf("%w: computed size is zero", ErrInvalidSizingInput)
	}

	sizeF, _ := size.Float64()
	stopF, _ := stop.Float64()
	tpF, _ := tp.Float64()
	return sizingResult{Size: sizeF, StopLoss: stopF, TakeProfit: tpF}, nil
}
