package risk

import "time"

// 机器可读的拒绝原因码。审计与通知都直接引用这些常量。
const (
	ReasonExposureExceeded   = "exposure_exceeded"
	ReasonCorrelatedExposure = "correlated_exposure_exceeded"
	ReasonDrawdownExceeded   = "drawdown_exceeded"
	ReasonMaxPositions       = "max_positions_reached"
	ReasonInvalidDecision    = "invalid_decision"
	ReasonStalePortfolio     = "stale_portfolio"
	ReasonInternalError      = "internal_error"
)

// Verdict 是风控闸门的唯一输出。
// 不变式：approved=false 时 Reasons 非空；approved=true 时
// AdjustedSize <= 引擎提议的原始仓位（只缩不放）。
type Verdict struct {
	Approved bool `json:"approved"`
	// Reasons 是机器可读原因码列表，approved 时为空。
	Reasons []string `json:"reasons,omitempty"`
	// Detail 是给人看的拒绝说明。
	Detail string `json:"detail,omitempty"`
	// AdjustedSize 是放行的仓位（可能被缩小）；非开仓决策为 0。
	AdjustedSize float64   `json:"adjusted_size,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

func approved(size float64, at time.Time) Verdict {
	return Verdict{Approved: true, AdjustedSize: size, CheckedAt: at}
}

func rejected(at time.Time, detail string, reasons ...string) Verdict {
	return Verdict{Approved: false, Reasons: reasons, Detail: detail, CheckedAt: at}
}
