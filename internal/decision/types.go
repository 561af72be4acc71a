package decision

import (
	"errors"
	"time"

	"quorum/internal/market"
)

// Action 是归一化后的动作。Provider 只投 buy/sell/hold 三种原始票；
// 经过持仓上下文裁决后才会出现 open_*/close_* 的最终动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"

	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
)

// IsOpening 报告动作是否会建立新仓位（需要 sizing 与止损/止盈）。
func (a Action) IsOpening() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// IsClosing 报告动作是否平掉现有仓位。
func (a Action) IsClosing() bool {
	return a == ActionCloseLong || a == ActionCloseShort
}

// Side 返回开仓方向（"long"/"short"），非开仓动作返回空串。
func (a Action) Side() string {
	switch a {
	case ActionOpenLong:
		return "long"
	case ActionOpenShort:
		return "short"
	default:
		return ""
	}
}

type VoteStatus string

const (
	VoteOK       VoteStatus = "ok"
	VoteFailed   VoteStatus = "failed"
	VoteTimedOut VoteStatus = "timed_out"
)

// ProviderVote 是一个 Provider 在一个周期内的产出，创建后不再修改。
// 失败是数据不是异常：failed/timed_out 的票保留在决策记录里供审计。
type ProviderVote struct {
	ProviderID string     `json:"provider_id"`
	Action     Action     `json:"action"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale,omitempty"`
	Status     VoteStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	// StopLossPct 是 Provider 建议的止损距离（相对入场价的小数），可为 0 表示不建议。
	StopLossPct float64       `json:"stop_loss_pct,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// Tier 标记最终采用的投票档位，用于审计。
type Tier string

const (
	TierWeighted Tier = "weighted"
	TierMajority Tier = "majority"
	TierSingle   Tier = "single"
)

// Decision 是引擎对一个周期的唯一产出。
// 不变式：IsOpening 的决策必须带 Size/StopLoss/TakeProfit，且止损在
// 入场价的亏损侧、止盈在盈利侧（short 与 long 相反）。
type Decision struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`

	// Size 为空表示"仅信号，不给仓位"（hold 及平仓按持仓量处理）。
	Size       *float64 `json:"size,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	EntryPrice float64  `json:"entry_price,omitempty"`

	Votes       []ProviderVote     `json:"votes"`
	Tier        Tier               `json:"tier"`
	WeightsUsed map[string]float64 `json:"weights_used,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// PositionState 描述当前账户在该 symbol 上的持仓形态。
type PositionState string

const (
	PositionFlat  PositionState = "flat"
	PositionLong  PositionState = "long"
	PositionShort PositionState = "short"
)

// PositionContext 是解释 buy/sell 语义所必需的持仓上下文。
type PositionContext struct {
	State      PositionState
	PositionID string
	Amount     float64
	EntryPrice float64
}

// AccountSnapshot 是引擎视角的账户概要（由 agent 从 PortfolioState 投影）。
type AccountSnapshot struct {
	Total     float64
	Available float64
	Currency  string
	UpdatedAt time.Time
}

// Input 是引擎一次决策的全部输入，构造后只读。
type Input struct {
	Symbol        string
	Snapshot      *market.Snapshot
	BaseTimeframe string
	Account       AccountSnapshot
	Position      PositionContext
}

var (
	// ErrAllProvidersFailed：所有 Provider 失败或超时，主循环按 stale_data 同级处理。
	ErrAllProvidersFailed = errors.New("all providers failed or timed out")
	// ErrInvalidSizingInput：入场价/余额等 sizing 输入非法。
	ErrInvalidSizingInput = errors.New("invalid sizing input")
	// ErrPositionContextMismatch：动作与持仓上下文无法安全裁决。
	ErrPositionContextMismatch = errors.New("action incompatible with position context")
)
