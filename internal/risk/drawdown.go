package risk

import "quorum/internal/exchange"

// CurrentDrawdown 计算当前回撤：(峰值净值 − 当前净值) / 峰值净值。
// 回撤永远是比例，绝不能拿美元盈亏数额去和百分比阈值比较——
// 那是这个检查存在的全部意义。
func CurrentDrawdown(ps *exchange.PortfolioState) float64 {
	peak := ps.PeakEquity
	for _, pt := range ps.History {
		if pt.Equity > peak {
			peak = pt.Equity
		}
	}
	equity := ps.Equity()
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak
}
