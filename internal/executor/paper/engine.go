// Package paper implements a simulated execution backend with full
// position accounting. It fills orders at the current mark price plus a
// configurable slippage and keeps balance, positions and realized equity
// history in memory, so the rest of the system runs unchanged against it.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quorum/internal/config"
	"quorum/internal/decision"
	"quorum/internal/exchange"
	"quorum/internal/logger"
)

// ErrOutcomeUnknown simulates a connection dropped after order submit.
// A fault hook returning it makes Execute report OutcomeKnown=false.
var ErrOutcomeUnknown = errors.New("order outcome unknown")

// Engine is the paper trading executor. Safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	balance   decimal.Decimal
	currency  string
	positions map[string]exchange.Position
	history   []exchange.EquityPoint
	peak      decimal.Decimal

	slippage decimal.Decimal
	leverage decimal.Decimal

	pricer exchange.MarkPricer

	// faultHook runs right before a fill is applied. Tests use it to
	// inject failures and the ambiguous-outcome case.
	faultHook func(d decision.Decision) error

	nowFn func() time.Time
}

// NewEngine builds a paper engine funded with cfg.InitialBalance.
func NewEngine(cfg config.ExecutorConfig, pricer exchange.MarkPricer) *Engine {
	lev := cfg.Leverage
	if lev <= 0 {
		lev = 1
	}
	bal := decimal.NewFromFloat(cfg.InitialBalance)
	return &Engine{
		balance:   bal,
		currency:  "USDT",
		positions: make(map[string]exchange.Position),
		peak:      bal,
		slippage:  decimal.NewFromFloat(cfg.SlippagePct),
		leverage:  decimal.NewFromInt(int64(lev)),
		pricer:    pricer,
		nowFn:     time.Now,
	}
}

func (e *Engine) Name() string { return "paper" }

// SetFaultHook installs a pre-fill hook. Pass nil to clear.
func (e *Engine) SetFaultHook(h func(d decision.Decision) error) {
	e.mu.Lock()
	e.faultHook = h
	e.mu.Unlock()
}

// Execute fills an approved decision. Opening actions create a position
// sized approvedSize; closing actions flatten the tracked position and
// realize its P&L. A hold decision is a successful no-op.
func (e *Engine) Execute(ctx context.Context, d decision.Decision, approvedSize float64) (exchange.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return exchange.ExecutionResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowFn()

	if e.faultHook != nil {
		if err := e.faultHook(d); err != nil {
			if errors.Is(err, ErrOutcomeUnknown) {
				return exchange.ExecutionResult{
					Success:      false,
					Error:        err.Error(),
					OutcomeKnown: false,
					ExecutedAt:   now,
				}, nil
			}
			return failedResult(now, err.Error()), nil
		}
	}

	switch {
	case d.Action.IsOpening():
		return e.open(ctx, d, approvedSize, now)
	case d.Action.IsClosing():
		return e.close(ctx, d, now)
	default:
		return exchange.ExecutionResult{Success: true, OutcomeKnown: true, ExecutedAt: now}, nil
	}
}

func (e *Engine) open(ctx context.Context, d decision.Decision, size float64, now time.Time) (exchange.ExecutionResult, error) {
	if size <= 0 {
		return failedResult(now, "approved size must be positive"), nil
	}
	if _, exists := e.positions[d.Symbol]; exists {
		return failedResult(now, fmt.Sprintf("position already open for %s", d.Symbol)), nil
	}
	side := d.Action.Side()

	mark, err := e.markPrice(ctx, d.Symbol, d.EntryPrice)
	if err != nil {
		return failedResult(now, err.Error()), nil
	}
	fill := e.applySlippage(mark, side, true)

	amount := decimal.NewFromFloat(size)
	stake := amount.Mul(fill).Div(e.leverage)
	if stake.GreaterThan(e.balance) {
		return failedResult(now, fmt.Sprintf("insufficient balance: need %s, have %s", stake.StringFixed(2), e.balance.StringFixed(2))), nil
	}

	pos := exchange.Position{
		ID:           uuid.NewString(),
		Symbol:       d.Symbol,
		Side:         side,
		Amount:       size,
		EntryPrice:   mustFloat(fill),
		Leverage:     mustFloat(e.leverage),
		Stake:        mustFloat(stake),
		OpenedAt:     now,
		CurrentPrice: mustFloat(fill),
	}
	if d.StopLoss != nil {
		pos.StopLoss = *d.StopLoss
	}
	if d.TakeProfit != nil {
		pos.TakeProfit = *d.TakeProfit
	}
	e.positions[d.Symbol] = pos

	logger.Infof("paper fill: open %s %s amount=%.6f @ %s (stake %s)",
		side, d.Symbol, size, fill.StringFixed(4), stake.StringFixed(2))
	return exchange.ExecutionResult{
		Success:      true,
		OrderRef:     pos.ID,
		OutcomeKnown: true,
		FilledPrice:  pos.EntryPrice,
		FilledAmount: size,
		ExecutedAt:   now,
	}, nil
}

func (e *Engine) close(ctx context.Context, d decision.Decision, now time.Time) (exchange.ExecutionResult, error) {
	pos, exists := e.positions[d.Symbol]
	if !exists {
		return failedResult(now, fmt.Sprintf("no open position for %s", d.Symbol)), nil
	}
	mark, err := e.markPrice(ctx, d.Symbol, pos.CurrentPrice)
	if err != nil {
		return failedResult(now, err.Error()), nil
	}
	fill := e.applySlippage(mark, pos.Side, false)
	ref := e.settle(pos, fill, now)

	return exchange.ExecutionResult{
		Success:      true,
		OrderRef:     ref,
		OutcomeKnown: true,
		FilledPrice:  mustFloat(fill),
		FilledAmount: pos.Amount,
		ExecutedAt:   now,
	}, nil
}

// settle removes the position, realizes its P&L into the balance and
// records an equity sample. Caller holds the lock.
func (e *Engine) settle(pos exchange.Position, fill decimal.Decimal, now time.Time) string {
	amount := decimal.NewFromFloat(pos.Amount)
	entry := decimal.NewFromFloat(pos.EntryPrice)
	pnl := fill.Sub(entry).Mul(amount)
	if pos.Side == "short" {
		pnl = pnl.Neg()
	}
	e.balance = e.balance.Add(pnl)
	delete(e.positions, pos.Symbol)

	eq := mustFloat(e.balance)
	e.history = append(e.history, exchange.EquityPoint{Equity: eq, At: now})
	if e.balance.GreaterThan(e.peak) {
		e.peak = e.balance
	}
	logger.Infof("paper fill: close %s %s @ %s, pnl=%s, equity=%s",
		pos.Side, pos.Symbol, fill.StringFixed(4), pnl.StringFixed(2), e.balance.StringFixed(2))
	return uuid.NewString()
}

// applySlippage moves the fill price against the trader.
// Opening a long or closing a short pays up; the opposite side receives less.
func (e *Engine) applySlippage(mark decimal.Decimal, side string, opening bool) decimal.Decimal {
	if e.slippage.IsZero() {
		return mark
	}
	worse := (side == "long") == opening
	if worse {
		return mark.Mul(decimal.NewFromInt(1).Add(e.slippage))
	}
	return mark.Mul(decimal.NewFromInt(1).Sub(e.slippage))
}

func (e *Engine) markPrice(ctx context.Context, symbol string, fallback float64) (decimal.Decimal, error) {
	if e.pricer != nil {
		p, err := e.pricer.MarkPrice(ctx, symbol)
		if err == nil && p > 0 {
			return decimal.NewFromFloat(p), nil
		}
		if err != nil {
			logger.Warnf("mark price for %s unavailable, using fallback: %v", symbol, err)
		}
	}
	if fallback <= 0 {
		return decimal.Zero, fmt.Errorf("no usable price for %s", symbol)
	}
	return decimal.NewFromFloat(fallback), nil
}

func failedResult(at time.Time, msg string) exchange.ExecutionResult {
	return exchange.ExecutionResult{Success: false, Error: msg, OutcomeKnown: true, ExecutedAt: at}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
