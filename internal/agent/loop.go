// Package agent 实现主控制循环：感知 → 决策 → 风控 → 执行 → 记录。
// 循环单 goroutine 运行，operator 指令与配置热更新都在周期边界生效，
// 任何一步失败都走统一的恢复路径，绝不带病继续。
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quorum/internal/audit"
	"quorum/internal/config"
	"quorum/internal/decision"
	"quorum/internal/exchange"
	"quorum/internal/learn"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/notifier"
	"quorum/internal/risk"
	"quorum/internal/scheduler"
)

const signalQueueDepth = 16

// Deps 是构造 Agent 所需的全部依赖。
type Deps struct {
	Config    *config.Config
	Fetcher   *market.SnapshotFetcher
	Portfolio exchange.PortfolioReader
	Engine    *decision.Engine
	Gate      *risk.Gatekeeper
	Executor  exchange.Executor
	Recorder  *learn.Recorder // 可空：结果记录是尽力而为
	Audit     *audit.Store    // 可空
	Notify    notifier.TextNotifier
}

// Agent 驱动整个交易周期。所有可变字段只被循环 goroutine 触碰，
// 对外只暴露 Signal（入）与 StateSnapshot（出）两条通道。
type Agent struct {
	cfg       *config.Config
	fetcher   *market.SnapshotFetcher
	portfolio exchange.PortfolioReader
	engine    *decision.Engine
	gate      *risk.Gatekeeper
	executor  exchange.Executor
	recorder  *learn.Recorder
	audit     *audit.Store
	notify    notifier.TextNotifier

	signals chan Signal
	pub     *statePublisher

	paused     bool
	halted     bool
	haltReason string
	fails      int
	cycleSeq   uint64
	// cooldown 记录每个 symbol 还需要跳过的周期数（风控拒绝后冷却）。
	cooldown map[string]int

	// rebuildGate 在配置热更新时用新阈值重建风控闸门。
	rebuildGate func(*config.Config) *risk.Gatekeeper

	cancel context.CancelFunc
	nowFn  func() time.Time
}

// New 构造 Agent。rebuildGate 可空（热更新时仅更新循环级参数）。
func New(d Deps, rebuildGate func(*config.Config) *risk.Gatekeeper) (*Agent, error) {
	if d.Config == nil || d.Fetcher == nil || d.Portfolio == nil ||
		d.Engine == nil || d.Gate == nil || d.Executor == nil {
		return nil, fmt.Errorf("agent 依赖不完整")
	}
	notify := d.Notify
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Agent{
		cfg:         d.Config,
		fetcher:     d.Fetcher,
		portfolio:   d.Portfolio,
		engine:      d.Engine,
		gate:        d.Gate,
		executor:    d.Executor,
		recorder:    d.Recorder,
		audit:       d.Audit,
		notify:      notify,
		signals:     make(chan Signal, signalQueueDepth),
		pub:         newStatePublisher(),
		cooldown:    make(map[string]int),
		rebuildGate: rebuildGate,
		nowFn:       time.Now,
	}, nil
}

// StateSnapshot 返回最近发布的状态，供 HTTP 层投影。
func (a *Agent) StateSnapshot() State {
	return a.pub.Snapshot()
}

// Run 阻塞运行主循环，直到 ctx 取消或 kill-switch/失败上限停机。
func (a *Agent) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel

	interval, ok := scheduler.ParseIntervalDuration(a.cfg.Agent.CycleInterval)
	if !ok {
		return fmt.Errorf("无法解析周期间隔: %q", a.cfg.Agent.CycleInterval)
	}
	sched := scheduler.NewAlignedScheduler(runCtx, interval,
		time.Duration(a.cfg.Agent.CycleOffsetSeconds)*time.Second)
	sched.RunImmediately = a.cfg.Agent.RunImmediately

	a.setPhase(PhaseIdle, "")
	logger.Infof("agent 启动: interval=%s symbols=%v", interval, a.cfg.Market.Symbols)

	sched.Start(func() { a.cycle(runCtx) })

	if a.halted {
		logger.Warnf("agent 停机: %s", a.haltReason)
		return nil
	}
	a.setPhase(PhaseStopped, "context cancelled")
	return runCtx.Err()
}

// cycle 执行一个完整周期：先消化 operator 指令，再逐 symbol 走完
// 感知到记录的全部步骤。ctx 取消只在步骤边界生效。
func (a *Agent) cycle(ctx context.Context) {
	a.drainSignals()
	if a.halted {
		if a.cancel != nil {
			a.cancel()
		}
		return
	}
	if a.paused {
		a.setPhase(PhaseIdle, "")
		return
	}
	if ctx.Err() != nil {
		return
	}

	a.cycleSeq++
	for _, sym := range a.cfg.Market.Symbols {
		if ctx.Err() != nil || a.halted {
			return
		}
		if left := a.cooldown[sym]; left > 0 {
			a.cooldown[sym] = left - 1
			logger.Infof("%s 冷却中，还剩 %d 个周期", sym, left-1)
			continue
		}
		a.runSymbol(ctx, sym)
	}
	// 失败周期停留在 Recovering，让状态页能看到恢复中
	if !a.halted && ctx.Err() == nil && a.fails == 0 {
		a.setPhase(PhaseIdle, "")
	}
}

// runSymbol 对单个 symbol 走完一次决策周期。
func (a *Agent) runSymbol(ctx context.Context, sym string) {
	// ---- Perceiving ----
	a.setPhase(PhasePerceiving, sym)
	snap, err := a.fetcher.Fetch(ctx, sym)
	if err != nil {
		a.handleFailure(ctx, sym, fmt.Errorf("拉取行情失败: %w", err))
		return
	}
	freshness := time.Duration(a.cfg.Market.FreshnessSeconds) * time.Second
	if freshness > 0 && !snap.Fresh(a.nowFn(), freshness) {
		a.handleFailure(ctx, sym, fmt.Errorf("行情快照过期 %s，放弃本周期", snap.Age(a.nowFn()).Truncate(time.Second)))
		return
	}
	ps, err := a.portfolio.Portfolio(ctx)
	if err != nil {
		a.handleFailure(ctx, sym, fmt.Errorf("拉取组合状态失败: %w", err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	// ---- Deciding ----
	a.setPhase(PhaseDeciding, sym)
	input := buildInput(sym, snap, a.cfg.Market.BaseTimeframe, &ps)
	dec, err := a.engine.Decide(ctx, input)
	if err != nil {
		if errors.Is(err, decision.ErrAllProvidersFailed) {
			a.handleFailure(ctx, sym, fmt.Errorf("全部 provider 失败: %w", err))
			return
		}
		a.handleFailure(ctx, sym, fmt.Errorf("决策失败: %w", err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	// ---- RiskChecking ----
	// 风控只看新鲜数据：决策期间（provider 可能耗几十秒）快照过期
	// 要按失败处理，组合状态必须重拉，绝不复用感知阶段的快照。
	// hold 决策同样过闸门，审计里每个周期都有判决记录。
	a.setPhase(PhaseRiskChecking, sym)
	if freshness > 0 && !snap.Fresh(a.nowFn(), freshness) {
		a.handleFailure(ctx, sym, fmt.Errorf("行情快照在决策期间过期 %s，放弃执行", snap.Age(a.nowFn()).Truncate(time.Second)))
		return
	}
	ps, err = a.portfolio.Portfolio(ctx)
	if err != nil {
		a.handleFailure(ctx, sym, fmt.Errorf("风控前重拉组合失败: %w", err))
		return
	}
	verdict := a.gate.Check(ctx, dec, &ps)
	if !verdict.Approved {
		logger.Warnf("%s 风控拒绝 %s: %v (%s)", sym, dec.Action, verdict.Reasons, verdict.Detail)
		a.appendAudit(ctx, dec, &verdict, nil, ps.Equity(), "rejected")
		a.publishDecision(dec, &verdict)
		if cd := a.cfg.Agent.RejectCooldownCycle; cd > 0 {
			a.cooldown[sym] = cd
		}
		a.sendNotify(notifier.RejectionMessage(dec, verdict))
		a.fails = 0
		return
	}
	if dec.Action == decision.ActionHold {
		logger.Infof("%s 决策: hold (tier=%s conf=%.2f)", sym, dec.Tier, dec.Confidence)
		a.appendAudit(ctx, dec, &verdict, nil, ps.Equity(), "hold")
		a.publishDecision(dec, &verdict)
		a.fails = 0
		return
	}
	if ctx.Err() != nil {
		return
	}

	// ---- Executing ----
	a.setPhase(PhaseExecuting, sym)
	res, err := a.executor.Execute(ctx, dec, verdict.AdjustedSize)
	if err != nil {
		a.handleFailure(ctx, sym, fmt.Errorf("执行失败: %w", err))
		return
	}

	// ---- Learning ----
	a.setPhase(PhaseLearning, sym)
	a.recordOutcome(ctx, dec, &ps, res)
	a.appendAudit(ctx, dec, &verdict, &res, ps.Equity(), "")
	a.publishDecision(dec, &verdict)
	a.sendNotify(notifier.ExecutionMessage(dec, res))
	// 连续失败计数只在周期完整走完后清零，执行阶段反复失败
	// 同样会触顶停机
	a.fails = 0
}

// buildInput 把组合状态投影成引擎输入。引擎只看得到自己需要的切面。
func buildInput(sym string, snap *market.Snapshot, baseTF string, ps *exchange.PortfolioState) decision.Input {
	input := decision.Input{
		Symbol:        sym,
		Snapshot:      snap,
		BaseTimeframe: baseTF,
		Account: decision.AccountSnapshot{
			Total:     ps.Balance.Total,
			Available: ps.Balance.Available,
			Currency:  ps.Balance.StakeCurrency,
			UpdatedAt: ps.Balance.UpdatedAt,
		},
		Position: decision.PositionContext{State: decision.PositionFlat},
	}
	if pos, ok := ps.PositionFor(sym); ok {
		state := decision.PositionLong
		if pos.Side == "short" {
			state = decision.PositionShort
		}
		input.Position = decision.PositionContext{
			State:      state,
			PositionID: pos.ID,
			Amount:     pos.Amount,
			EntryPrice: pos.EntryPrice,
		}
	}
	return input
}

// recordOutcome 把执行结果写进 learn 存储。写入失败只记日志。
func (a *Agent) recordOutcome(ctx context.Context, dec decision.Decision, ps *exchange.PortfolioState, res exchange.ExecutionResult) {
	if a.recorder == nil {
		return
	}
	result, pnl, detail := classifyOutcome(dec, ps, res)
	if err := a.recorder.Record(ctx, dec, result, pnl, res.OrderRef, detail, res.ExecutedAt); err != nil {
		logger.Warnf("记录决策结果失败: %v", err)
	}
}

// classifyOutcome 给执行结果打标签。
// 模糊结局（OutcomeKnown=false）必须标成 unknown，绝不并入胜负。
func classifyOutcome(dec decision.Decision, ps *exchange.PortfolioState, res exchange.ExecutionResult) (string, float64, string) {
	if !res.OutcomeKnown {
		return learn.ResultUnknown, 0, "提交后连接中断，结果未知"
	}
	if !res.Success {
		return learn.ResultFlat, 0, "执行未成交: " + res.Error
	}
	if dec.Action.IsClosing() {
		pos, ok := ps.PositionFor(dec.Symbol)
		if ok && res.FilledPrice > 0 {
			pnl := (res.FilledPrice - pos.EntryPrice) * res.FilledAmount
			if pos.Side == "short" {
				pnl = -pnl
			}
			switch {
			case pnl > 0:
				return learn.ResultWin, pnl, ""
			case pnl < 0:
				return learn.ResultLoss, pnl, ""
			}
		}
		return learn.ResultFlat, 0, ""
	}
	// 开仓时胜负未分，先记 flat 占位
	return learn.ResultFlat, 0, "opened"
}

func (a *Agent) appendAudit(ctx context.Context, dec decision.Decision, v *risk.Verdict, res *exchange.ExecutionResult, equity float64, note string) {
	if a.audit == nil {
		return
	}
	err := a.audit.AppendCycle(ctx, audit.CycleEntry{
		CycleSeq:  a.cycleSeq,
		Decision:  dec,
		Verdict:   v,
		Execution: res,
		Equity:    equity,
		Note:      note,
		At:        a.nowFn(),
	})
	if err != nil {
		logger.Warnf("写入审计记录失败: %v", err)
	}
}

// handleFailure 统一处理周期内失败：计数、进入 Recovering 退避，
// 连续失败达到上限直接停机。
func (a *Agent) handleFailure(ctx context.Context, sym string, err error) {
	a.fails++
	logger.Errorf("%s 周期失败(%d/%d): %v", sym, a.fails, a.cfg.Agent.MaxConsecutiveFails, err)
	a.appendEvent(ctx, "cycle_failure", map[string]any{
		"symbol": sym, "error": err.Error(), "consecutive": a.fails,
	})

	max := a.cfg.Agent.MaxConsecutiveFails
	if max > 0 && a.fails >= max {
		a.halt(fmt.Sprintf("连续失败 %d 次，达到上限 %d", a.fails, max))
		return
	}

	st := a.pub.Snapshot()
	st.Phase = PhaseRecovering
	st.Symbol = sym
	st.ConsecutiveFails = a.fails
	st.LastError = err.Error()
	st.CycleSeq = a.cycleSeq
	st.Paused = a.paused
	a.pub.publish(st)

	a.backoff(ctx)
}

// backoff 按失败次数指数退避，封顶 BackoffMaxSeconds。
func (a *Agent) backoff(ctx context.Context) {
	base := time.Duration(a.cfg.Agent.BackoffSeconds) * time.Second
	if base <= 0 {
		base = 5 * time.Second
	}
	maxWait := time.Duration(a.cfg.Agent.BackoffMaxSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	wait := base << uint(a.fails-1)
	if wait > maxWait || wait <= 0 {
		wait = maxWait
	}
	logger.Infof("进入恢复退避 %s", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// halt 停机：发布 Stopped、落审计、推送通知，并取消运行 ctx。
func (a *Agent) halt(reason string) {
	a.halted = true
	a.haltReason = reason
	st := a.pub.Snapshot()
	st.Phase = PhaseStopped
	st.StoppedReason = reason
	st.Paused = a.paused
	st.CycleSeq = a.cycleSeq
	st.ConsecutiveFails = a.fails
	a.pub.publish(st)

	a.appendEvent(context.Background(), "halt", map[string]any{"reason": reason})
	a.sendNotify(notifier.HaltMessage(reason))
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Agent) applySignal(s Signal) {
	logger.Infof("收到 operator 信号: %s", s.Kind)
	a.appendEvent(context.Background(), "signal", map[string]any{"kind": string(s.Kind), "reason": s.Reason})
	switch s.Kind {
	case SignalPause:
		a.paused = true
	case SignalResume:
		a.paused = false
		a.fails = 0
	case SignalKillSwitch:
		reason := s.Reason
		if reason == "" {
			reason = "operator kill-switch"
		}
		a.halt(reason)
	case SignalReloadConfig:
		a.applyConfig(s.Config)
	}
}

// applyConfig 在周期边界整体替换配置快照。
// Provider 集合与行情来源的变更需要重启进程，这里只接管循环级参数。
func (a *Agent) applyConfig(cfg *config.Config) {
	a.cfg = cfg
	if a.rebuildGate != nil {
		a.gate = a.rebuildGate(cfg)
	}
	logger.Infof("配置已热更新，symbols=%v", cfg.Market.Symbols)
}

func (a *Agent) setPhase(p Phase, sym string) {
	st := a.pub.Snapshot()
	st.Phase = p
	st.Symbol = sym
	st.Paused = a.paused
	st.CycleSeq = a.cycleSeq
	st.ConsecutiveFails = a.fails
	st.LastError = ""
	a.pub.publish(st)
}

func (a *Agent) publishDecision(dec decision.Decision, v *risk.Verdict) {
	st := a.pub.Snapshot()
	st.LastDecisionID = dec.ID
	st.LastAction = string(dec.Action)
	st.LastTier = string(dec.Tier)
	if v != nil {
		approved := v.Approved
		st.LastApproved = &approved
	} else {
		st.LastApproved = nil
	}
	a.pub.publish(st)
}

func (a *Agent) appendEvent(ctx context.Context, kind string, detail any) {
	if a.audit == nil {
		return
	}
	if err := a.audit.AppendEvent(ctx, kind, detail); err != nil {
		logger.Warnf("写入审计事件失败: %v", err)
	}
}

func (a *Agent) sendNotify(m notifier.Message) {
	if a.notify == nil {
		return
	}
	// 通知走异步，推送失败不影响循环
	go func() {
		if err := a.notify.SendText(m.RenderMarkdown()); err != nil {
			logger.Warnf("推送通知失败: %v", err)
		}
	}()
}
