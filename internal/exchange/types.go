// Package exchange defines the narrow contract between the agent core and
// any execution backend (paper engine, exchange adapter, ...). The core only
// depends on these types; concrete adapters live elsewhere.
package exchange

import "time"

// Position represents an open trading position.
type Position struct {
	ID         string    // Backend-specific trade/position ID
	Symbol     string    // e.g., "ETH/USDT"
	Side       string    // "long" or "short"
	Amount     float64   // Position size in base currency
	EntryPrice float64   // Average entry price
	Leverage   float64   // Position leverage
	Stake      float64   // Stake currency committed
	OpenedAt   time.Time // When position was opened

	CurrentPrice       float64
	UnrealizedPnL      float64
	UnrealizedPnLRatio float64

	StopLoss   float64 // 0 if not set
	TakeProfit float64 // 0 if not set
}

// Notional returns the current position value in quote currency.
func (p Position) Notional() float64 {
	price := p.CurrentPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return p.Amount * price
}

// Balance represents account balance information.
type Balance struct {
	StakeCurrency string
	Total         float64
	Available     float64
	Used          float64
	UpdatedAt     time.Time
}

// EquityPoint is one realized-performance sample used for drawdown math.
type EquityPoint struct {
	Equity float64
	At     time.Time
}

// PortfolioState is the read-only account snapshot handed to the decision
// engine and the risk gatekeeper. It is rebuilt per fetch; the core never
// mutates it and never caches it across cycles.
type PortfolioState struct {
	Balance   Balance
	Positions []Position
	// History holds realized equity samples, oldest first. PeakEquity is
	// maintained by the accounting side so drawdown can always be computed
	// as a fraction of peak.
	History    []EquityPoint
	PeakEquity float64
	FetchedAt  time.Time
}

// PositionFor returns the open position for symbol, if any.
func (ps *PortfolioState) PositionFor(symbol string) (Position, bool) {
	for _, p := range ps.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// Equity returns current account equity (balance plus unrealized P&L).
func (ps *PortfolioState) Equity() float64 {
	eq := ps.Balance.Total
	for _, p := range ps.Positions {
		eq += p.UnrealizedPnL
	}
	return eq
}

// TotalExposure returns the summed notional of all open positions.
func (ps *PortfolioState) TotalExposure() float64 {
	total := 0.0
	for _, p := range ps.Positions {
		total += p.Notional()
	}
	return total
}

// ExecutionResult reports the outcome of executing one decision.
// OutcomeKnown=false is the "connection dropped after submit" case: the
// order may or may not exist on the backend, so the caller must not treat
// the cycle as either success or failure.
type ExecutionResult struct {
	Success      bool
	OrderRef     string
	Error        string
	OutcomeKnown bool
	FilledPrice  float64
	FilledAmount float64
	ExecutedAt   time.Time
}
