package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quorum/internal/logger"
	"quorum/internal/pkg/circuit"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProviderAdapter 是所有推理后端的统一形状。实现必须尊重 ctx 截止，
// 超时返回错误而不是阻塞；引擎会把错误归类为 failed/timed_out。
type ProviderAdapter interface {
	ID() string
	Propose(ctx context.Context, input Input) (ProviderVote, error)
}

// Engine 并发查询一组 Provider，把分歧裁决成唯一决策。
// 引擎自身无状态，可被多个串行周期复用；唯一的可变量是熔断器。
type Engine struct {
	providers []ProviderAdapter
	weights   map[string]float64
	timeouts  map[string]time.Duration
	breakers  map[string]*circuit.Breaker

	defaultTimeout time.Duration
	globalFactor   float64
	singleCap      float64
	sizing         SizingConfig

	nowFn func() time.Time
}

type EngineOptions struct {
	Weights        map[string]float64
	Timeouts       map[string]time.Duration
	DefaultTimeout time.Duration
	// GlobalFactor 控制总等待上限 = 最长单体超时 × 该系数（不是 ×N）。
	GlobalFactor     float64
	SingleCap        float64
	Sizing           SizingConfig
	BreakerThreshold int
	BreakerReset     time.Duration
}

func NewEngine(providers []ProviderAdapter, opts EngineOptions) (*Engine, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("ensemble engine requires at least one provider")
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	if opts.GlobalFactor < 1 {
		opts.GlobalFactor = 1.5
	}
	breakers := make(map[string]*circuit.Breaker, len(providers))
	for _, p := range providers {
		breakers[p.ID()] = circuit.NewBreaker(p.ID(), opts.BreakerThreshold, opts.BreakerReset)
	}
	return &Engine{
		providers:      providers,
		weights:        opts.Weights,
		timeouts:       opts.Timeouts,
		breakers:       breakers,
		defaultTimeout: opts.DefaultTimeout,
		globalFactor:   opts.GlobalFactor,
		singleCap:      opts.SingleCap,
		sizing:         opts.Sizing,
		nowFn:          time.Now,
	}, nil
}

// Decide 执行一次完整裁决：fan-out → 分档计票 → 持仓上下文裁决 →
// sizing → 不变式校验。零存活 Provider 返回 ErrAllProvidersFailed。
func (e *Engine) Decide(ctx context.Context, input Input) (Decision, error) {
	votes := e.fanOut(ctx, input)

	resolved, err := resolveVotes(votes, e.weights, e.singleCap)
	if err != nil {
		return Decision{}, fmt.Errorf("ensemble %s: %w", input.Symbol, err)
	}

	final, warnings, err := resolveWithPosition(resolved.Action, input.Position)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		ID:          uuid.NewString(),
		Symbol:      input.Symbol,
		Action:      final,
		Confidence:  resolved.Confidence,
		Votes:       votes,
		Tier:        resolved.Tier,
		WeightsUsed: resolved.WeightsUsed,
		Warnings:    warnings,
		CreatedAt:   e.nowFn(),
	}

	switch {
	case final.IsOpening():
		entry := input.Snapshot.LastPrice(input.BaseTimeframe)
		sized, err := computeSizing(final, entry, input.Account.Total, resolved.StopPct, e.sizing)
		if err != nil {
			return Decision{}, err
		}
		d.EntryPrice = entry
		d.Size = &sized.Size
		d.StopLoss = &sized.StopLoss
		d.TakeProfit = &sized.TakeProfit
	case final.IsClosing():
		// 平仓按现有持仓量处理，不需要 sizing
		if input.Position.Amount > 0 {
			amount := input.Position.Amount
			d.Size = &amount
		}
	}

	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// fanOut 并发调用全部 Provider。每个调用有独立的可取消超时；
// 整体再罩一个全局上限，最慢的少数派不能拖住整个周期。
func (e *Engine) fanOut(ctx context.Context, input Input) []ProviderVote {
	global := e.maxTimeout()
	groupCtx, cancel := context.WithTimeout(ctx, time.Duration(float64(global)*e.globalFactor))
	defer cancel()

	votes := make([]ProviderVote, len(e.providers))
	eg, egCtx := errgroup.WithContext(groupCtx)
	for i, p := range e.providers {
		i, p := i, p
		eg.Go(func() error {
			votes[i] = e.callProvider(egCtx, p, input)
			return nil
		})
	}
	_ = eg.Wait()
	return votes
}

func (e *Engine) callProvider(ctx context.Context, p ProviderAdapter, input Input) ProviderVote {
	id := p.ID()
	breaker := e.breakers[id]
	if breaker != nil && !breaker.Allow() {
		return ProviderVote{
			ProviderID: id,
			Action:     ActionHold,
			Status:     VoteFailed,
			Error:      "circuit breaker open",
		}
	}

	timeout := e.timeouts[id]
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.nowFn()
	vote, err := p.Propose(callCtx, input)
	elapsed := e.nowFn().Sub(start)
	vote.ProviderID = id
	vote.Elapsed = elapsed

	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		status := VoteFailed
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			status = VoteTimedOut
		}
		logger.Warnf("provider %s: %s (%s): %v", id, status, elapsed.Truncate(time.Millisecond), err)
		return ProviderVote{
			ProviderID: id,
			Action:     ActionHold,
			Status:     status,
			Error:      err.Error(),
			Elapsed:    elapsed,
		}
	}

	if vote.Confidence < 0 {
		vote.Confidence = 0
	}
	if vote.Confidence > 1 {
		vote.Confidence = 1
	}
	if _, ok := NormalizeAction(string(vote.Action)); !ok {
		if breaker != nil {
			breaker.RecordFailure()
		}
		return ProviderVote{
			ProviderID: id,
			Action:     ActionHold,
			Status:     VoteFailed,
			Error:      fmt.Sprintf("unrecognized action %q", vote.Action),
			Elapsed:    elapsed,
		}
	}
	norm, _ := NormalizeAction(string(vote.Action))
	vote.Action = norm
	vote.Status = VoteOK
	if breaker != nil {
		breaker.RecordSuccess()
	}
	return vote
}

func (e *Engine) maxTimeout() time.Duration {
	max := e.defaultTimeout
	for _, p := range e.providers {
		if t := e.timeouts[p.ID()]; t > max {
			max = t
		}
	}
	return max
}
