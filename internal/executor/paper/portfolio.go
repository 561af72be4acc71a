package paper

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"quorum/internal/exchange"
	"quorum/internal/logger"
)

// Portfolio builds a fresh snapshot: refresh mark prices, apply
// protective stops that were crossed, then copy out the state. The
// returned value shares nothing with the engine's internals.
func (e *Engine) Portfolio(ctx context.Context) (exchange.PortfolioState, error) {
	if err := ctx.Err(); err != nil {
		return exchange.PortfolioState{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowFn()

	e.refreshMarks(ctx, now)

	positions := make([]exchange.Position, 0, len(e.positions))
	used := decimal.Zero
	for _, p := range e.positions {
		positions = append(positions, p)
		used = used.Add(decimal.NewFromFloat(p.Stake))
	}
	history := make([]exchange.EquityPoint, len(e.history))
	copy(history, e.history)

	total := mustFloat(e.balance)
	ps := exchange.PortfolioState{
		Balance: exchange.Balance{
			StakeCurrency: e.currency,
			Total:         total,
			Available:     total - mustFloat(used),
			Used:          mustFloat(used),
			UpdatedAt:     now,
		},
		Positions:  positions,
		History:    history,
		PeakEquity: mustFloat(e.peak),
		FetchedAt:  now,
	}
	// Peak tracking includes unrealized P&L so drawdown stays meaningful
	// while positions are open.
	if eq := ps.Equity(); eq > mustFloat(e.peak) {
		e.peak = decimal.NewFromFloat(eq)
		ps.PeakEquity = eq
	}
	return ps, nil
}

// refreshMarks updates each position's mark price and unrealized P&L and
// triggers any crossed stop-loss/take-profit. Caller holds the lock.
func (e *Engine) refreshMarks(ctx context.Context, now time.Time) {
	if e.pricer == nil {
		return
	}
	for sym, pos := range e.positions {
		mark, err := e.pricer.MarkPrice(ctx, sym)
		if err != nil || mark <= 0 {
			if err != nil {
				logger.Warnf("refresh mark for %s failed: %v", sym, err)
			}
			continue
		}
		pos.CurrentPrice = mark
		pnl := (mark - pos.EntryPrice) * pos.Amount
		if pos.Side == "short" {
			pnl = -pnl
		}
		pos.UnrealizedPnL = pnl
		if pos.Stake > 0 {
			pos.UnrealizedPnLRatio = pnl / pos.Stake
		}
		e.positions[sym] = pos

		if level, hit := crossedProtection(pos, mark); hit {
			logger.Infof("protective level hit for %s at %.4f, closing", sym, level)
			e.settle(pos, decimal.NewFromFloat(level), now)
		}
	}
}

// crossedProtection reports whether mark has crossed the position's
// stop-loss or take-profit, and at which level the fill simulates.
func crossedProtection(pos exchange.Position, mark float64) (float64, bool) {
	if pos.Side == "long" {
		if pos.StopLoss > 0 && mark <= pos.StopLoss {
			return pos.StopLoss, true
		}
		if pos.TakeProfit > 0 && mark >= pos.TakeProfit {
			return pos.TakeProfit, true
		}
		return 0, false
	}
	// short: stop sits above entry, take-profit below
	if pos.StopLoss > 0 && mark >= pos.StopLoss {
		return pos.StopLoss, true
	}
	if pos.TakeProfit > 0 && mark <= pos.TakeProfit {
		return pos.TakeProfit, true
	}
	return 0, false
}
