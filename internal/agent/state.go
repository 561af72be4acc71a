package agent

import (
	"sync/atomic"
	"time"
)

// Phase 是主循环的当前相位。相位只在步骤边界切换，
// 外部观察到的永远是一个完整步骤之后的状态。
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhasePerceiving   Phase = "perceiving"
	PhaseDeciding     Phase = "deciding"
	PhaseRiskChecking Phase = "risk_checking"
	PhaseExecuting    Phase = "executing"
	PhaseLearning     Phase = "learning"
	PhaseRecovering   Phase = "recovering"
	PhaseStopped      Phase = "stopped"
)

// State 是对外发布的只读快照。HTTP 状态页直接投影这个结构，
// 绝不触碰循环内部的可变状态。
type State struct {
	Phase            Phase     `json:"phase"`
	Paused           bool      `json:"paused"`
	CycleSeq         uint64    `json:"cycle_seq"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	Symbol           string    `json:"symbol,omitempty"`
	LastDecisionID   string    `json:"last_decision_id,omitempty"`
	LastAction       string    `json:"last_action,omitempty"`
	LastTier         string    `json:"last_tier,omitempty"`
	LastApproved     *bool     `json:"last_approved,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	StoppedReason    string    `json:"stopped_reason,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// statePublisher 用 atomic.Value 整体替换快照，读侧永远无锁。
type statePublisher struct {
	v atomic.Value
}

func newStatePublisher() *statePublisher {
	p := &statePublisher{}
	p.v.Store(State{Phase: PhaseIdle, UpdatedAt: time.Now()})
	return p
}

func (p *statePublisher) publish(s State) {
	s.UpdatedAt = time.Now()
	p.v.Store(s)
}

// Snapshot 返回最近发布的状态副本。
func (p *statePublisher) Snapshot() State {
	return p.v.Load().(State)
}
