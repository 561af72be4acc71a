package decision

import "strings"

// NormalizeAction 统一动作名称，兼容 long/short/wait 等同义词。
// 返回空串表示无法识别。
func NormalizeAction(a string) (Action, bool) {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	a = strings.ToLower(strings.TrimSpace(a))
	a = replacer.Replace(a)
	switch a {
	case "buy", "long", "go_long", "open_long", "buy_long", "bullish":
		return ActionBuy, true
	case "sell", "short", "go_short", "open_short", "sell_short", "bearish":
		return ActionSell, true
	case "hold", "wait", "stay", "neutral", "none", "no_op", "noop":
		return ActionHold, true
	default:
		return "", false
	}
}
