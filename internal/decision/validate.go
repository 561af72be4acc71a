package decision

import "fmt"

// Validate 校验决策不变式，引擎返回前与风控入口都会调用。
// 开仓决策必须带 Size/StopLoss/TakeProfit，且方向正确：
// long 止损低于入场、止盈高于入场；short 完全相反。
func (d *Decision) Validate() error {
	if d == nil {
		return fmt.Errorf("decision 为空")
	}
	if d.Symbol == "" {
		return fmt.Errorf("decision %s 缺少 symbol", d.ID)
	}
	switch d.Action {
	case ActionOpenLong, ActionOpenShort:
	case ActionCloseLong, ActionCloseShort, ActionHold:
		return nil
	default:
		return fmt.Errorf("decision %s 动作非法: %s", d.ID, d.Action)
	}

	if d.Size == nil || *d.Size <= 0 {
		return fmt.Errorf("decision %s (%s) 缺少有效仓位", d.ID, d.Action)
	}
	if d.StopLoss == nil || d.TakeProfit == nil {
		return fmt.Errorf("decision %s (%s) 缺少止损/止盈", d.ID, d.Action)
	}
	if d.EntryPrice <= 0 {
		return fmt.Errorf("decision %s (%s) 入场价非法: %.8f", d.ID, d.Action, d.EntryPrice)
	}
	sl, tp := *d.StopLoss, *d.TakeProfit
	switch d.Action {
	case ActionOpenLong:
		if sl >= d.EntryPrice {
			return fmt.Errorf("decision %s long 止损 %.8f 必须低于入场价 %.8f", d.ID, sl, d.EntryPrice)
		}
		if tp <= d.EntryPrice {
			return fmt.Errorf("decision %s long 止盈 %.8f 必须高于入场价 %.8f", d.ID, tp, d.EntryPrice)
		}
	case ActionOpenShort:
		if sl <= d.EntryPrice {
			return fmt.Errorf("decision %s short 止损 %.8f 必须高于入场价 %.8f", d.ID, sl, d.EntryPrice)
		}
		if tp >= d.EntryPrice {
			return fmt.Errorf("decision %s short 止盈 %.8f 必须低于入场价 %.8f", d.ID, tp, d.EntryPrice)
		}
	}
	return nil
}
