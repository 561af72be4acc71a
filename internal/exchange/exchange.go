package exchange

import (
	"context"

	"quorum/internal/decision"
)

// Executor executes an approved decision. Implementations must return within
// the ctx deadline; a dropped connection after submit is reported through
// ExecutionResult.OutcomeKnown=false, never as a plain error.
type Executor interface {
	Name() string

	Execute(ctx context.Context, d decision.Decision, approvedSize float64) (ExecutionResult, error)
}

// PortfolioReader provides the per-cycle account snapshot. The agent fetches
// a fresh snapshot at Perceiving time and again right before RiskChecking;
// implementations must not hand out shared mutable state.
type PortfolioReader interface {
	Portfolio(ctx context.Context) (PortfolioState, error)
}

// MarkPricer lets the accounting side refresh mark prices before building
// a portfolio snapshot.
type MarkPricer interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}
