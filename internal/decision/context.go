package decision

import "fmt"

// resolveWithPosition 把原始票（buy/sell/hold）放进持仓上下文裁决成
// 最终动作。这是引擎里最重要的一步：空仓时 sell 表示开空，持多时
// sell 表示平多——把"平仓"误当"反向开仓"会悄悄把敞口翻倍。
//
// 完整映射：
//
//	flat  + buy  -> open_long
//	flat  + sell -> open_short
//	long  + sell -> close_long
//	long  + buy  -> hold（加仓不在本系统职责内，降级并告警）
//	short + buy  -> close_short
//	short + sell -> hold（同上）
//	任意  + hold -> hold
func resolveWithPosition(raw Action, pos PositionContext) (Action, []string, error) {
	if raw == ActionHold {
		return ActionHold, nil, nil
	}
	state := pos.State
	if state == "" {
		state = PositionFlat
	}
	switch state {
	case PositionFlat:
		switch raw {
		case ActionBuy:
			return ActionOpenLong, nil, nil
		case ActionSell:
			return ActionOpenShort, nil, nil
		}
	case PositionLong:
		switch raw {
		case ActionSell:
			return ActionCloseLong, nil, nil
		case ActionBuy:
			return ActionHold, []string{"已持多仓时收到 buy，降级为 hold（不加仓）"}, nil
		}
	case PositionShort:
		switch raw {
		case ActionBuy:
			return ActionCloseShort, nil, nil
		case ActionSell:
			return ActionHold, []string{"已持空仓时收到 sell，降级为 hold（不加仓）"}, nil
		}
	}
	return "", nil, fmt.Errorf("%w: action=%s position=%s", ErrPositionContextMismatch, raw, state)
}
