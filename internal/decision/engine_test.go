package decision

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/market"
)

// stubProvider 是可编程的假 Provider。
type stubProvider struct {
	id    string
	vote  ProviderVote
	err   error
	delay time.Duration
}

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) Propose(ctx context.Context, _ Input) (ProviderVote, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ProviderVote{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return ProviderVote{}, s.err
	}
	return s.vote, nil
}

func testSnapshot(symbol string, lastClose float64) *market.Snapshot {
	base := time.Now().Add(-10 * time.Minute).UnixMilli()
	candles := make([]market.Candle, 0, 3)
	for i := 0; i < 3; i++ {
		open := base + int64(i)*60_000
		candles = append(candles, market.Candle{
			OpenTime:  open,
			CloseTime: open + 59_999,
			Open:      lastClose,
			High:      lastClose + 1,
			Low:       lastClose - 1,
			Close:     lastClose,
			Volume:    10,
		})
	}
	return &market.Snapshot{
		Symbol:     symbol,
		Timeframes: map[string][]market.Candle{"5m": candles},
		CapturedAt: time.Now(),
	}
}

func testInput(pos PositionContext) Input {
	return Input{
		Symbol:        "BTC/USDT",
		Snapshot:      testSnapshot("BTC/USDT", 100),
		BaseTimeframe: "5m",
		Account:       AccountSnapshot{Total: 10000, Available: 10000, Currency: "USDT"},
		Position:      pos,
	}
}

func newTestEngine(t *testing.T, providers []ProviderAdapter, weights map[string]float64, timeouts map[string]time.Duration) *Engine {
	t.Helper()
	e, err := NewEngine(providers, EngineOptions{
		Weights:        weights,
		Timeouts:       timeouts,
		DefaultTimeout: 200 * time.Millisecond,
		GlobalFactor:   1.5,
		SingleCap:      0.6,
		Sizing: SizingConfig{
			RiskPerTradePct: 0.01,
			DefaultStopPct:  0.02,
			MinStopPct:      0.005,
			TakeProfitRatio: 2.0,
		},
	})
	require.NoError(t, err)
	return e
}

func TestEngineDecideOpensLongWhenFlat(t *testing.T) {
	providers := []ProviderAdapter{
		&stubProvider{id: "a", vote: ProviderVote{Action: ActionBuy, Confidence: 0.8}},
		&stubProvider{id: "b", vote: ProviderVote{Action: ActionBuy, Confidence: 0.6}},
	}
	e := newTestEngine(t, providers, map[string]float64{"a": 0.6, "b": 0.4}, nil)

	d, err := e.Decide(context.Background(), testInput(PositionContext{State: PositionFlat}))
	require.NoError(t, err)
	assert.Equal(t, ActionOpenLong, d.Action)
	assert.Equal(t, TierWeighted, d.Tier)
	require.NotNil(t, d.Size)
	require.NotNil(t, d.StopLoss)
	require.NotNil(t, d.TakeProfit)
	assert.InDelta(t, 100.0, d.EntryPrice, 1e-9)
	assert.Less(t, *d.StopLoss, d.EntryPrice)
	assert.Greater(t, *d.TakeProfit, d.EntryPrice)
	assert.NotEmpty(t, d.ID)
	assert.Len(t, d.Votes, 2)
}

func TestEngineDecideAllProvidersTimeout(t *testing.T) {
	// 全部 Provider 超时：周期必须以 ErrAllProvidersFailed 失败，
	// 而不是拿陈旧或空白信号继续
	providers := []ProviderAdapter{
		&stubProvider{id: "a", delay: time.Second, vote: ProviderVote{Action: ActionBuy, Confidence: 0.9}},
		&stubProvider{id: "b", delay: time.Second, vote: ProviderVote{Action: ActionBuy, Confidence: 0.9}},
	}
	timeouts := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 30 * time.Millisecond}
	e := newTestEngine(t, providers, map[string]float64{"a": 0.5, "b": 0.5}, timeouts)

	start := time.Now()
	_, err := e.Decide(context.Background(), testInput(PositionContext{State: PositionFlat}))
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "失败必须在超时边界内返回")
}

func TestEngineDecideTimedOutVotesKeepStatus(t *testing.T) {
	providers := []ProviderAdapter{
		&stubProvider{id: "fast", vote: ProviderVote{Action: ActionHold, Confidence: 0.5}},
		&stubProvider{id: "slow", delay: time.Second, vote: ProviderVote{Action: ActionBuy, Confidence: 0.9}},
	}
	timeouts := map[string]time.Duration{"fast": 200 * time.Millisecond, "slow": 30 * time.Millisecond}
	e := newTestEngine(t, providers, map[string]float64{"fast": 0.5, "slow": 0.5}, timeouts)

	d, err := e.Decide(context.Background(), testInput(PositionContext{State: PositionFlat}))
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)
	assert.Equal(t, TierSingle, d.Tier)

	byID := map[string]ProviderVote{}
	for _, v := range d.Votes {
		byID[v.ProviderID] = v
	}
	assert.Equal(t, VoteOK, byID["fast"].Status)
	assert.Equal(t, VoteTimedOut, byID["slow"].Status, "超时票必须标记 timed_out 留档")
}

func TestEngineDecideClosesWithPositionAmount(t *testing.T) {
	providers := []ProviderAdapter{
		&stubProvider{id: "a", vote: ProviderVote{Action: ActionSell, Confidence: 0.8}},
		&stubProvider{id: "b", vote: ProviderVote{Action: ActionSell, Confidence: 0.7}},
	}
	e := newTestEngine(t, providers, map[string]float64{"a": 0.5, "b": 0.5}, nil)

	pos := PositionContext{State: PositionLong, PositionID: "p1", Amount: 0.75, EntryPrice: 95}
	d, err := e.Decide(context.Background(), testInput(pos))
	require.NoError(t, err)
	assert.Equal(t, ActionCloseLong, d.Action)
	require.NotNil(t, d.Size)
	assert.InDelta(t, 0.75, *d.Size, 1e-9, "平仓量必须等于持仓量")
	assert.Nil(t, d.StopLoss)
}

func TestEngineDecideNormalizesProviderActions(t *testing.T) {
	providers := []ProviderAdapter{
		&stubProvider{id: "a", vote: ProviderVote{Action: Action("LONG"), Confidence: 0.8}},
		&stubProvider{id: "b", vote: ProviderVote{Action: Action("go long"), Confidence: 0.7}},
	}
	e := newTestEngine(t, providers, map[string]float64{"a": 0.5, "b": 0.5}, nil)

	d, err := e.Decide(context.Background(), testInput(PositionContext{State: PositionFlat}))
	require.NoError(t, err)
	assert.Equal(t, ActionOpenLong, d.Action)
}

func TestEngineDecideRejectsUnrecognizedAction(t *testing.T) {
	providers := []ProviderAdapter{
		&stubProvider{id: "a", vote: ProviderVote{Action: Action("yolo"), Confidence: 0.9}},
		&stubProvider{id: "b", err: fmt.Errorf("api down")},
	}
	e := newTestEngine(t, providers, map[string]float64{"a": 0.5, "b": 0.5}, nil)

	_, err := e.Decide(context.Background(), testInput(PositionContext{State: PositionFlat}))
	assert.ErrorIs(t, err, ErrAllProvidersFailed, "动作无法归一的票等同失败票")
}

func TestEngineDecideElapsedFollowsInjectedClock(t *testing.T) {
	p := &stubProvider{id: "a", vote: ProviderVote{Action: ActionHold, Confidence: 0.5}}
	e := newTestEngine(t, []ProviderAdapter{p}, nil, nil)

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	step := 0
	e.nowFn = func() time.Time {
		step++
		switch step {
		case 1:
			return base
		case 2:
			return base.Add(250 * time.Millisecond)
		default:
			return base.Add(300 * time.Millisecond)
		}
	}

	d, err := e.Decide(context.Background(), testInput(PositionContext{State: PositionFlat}))
	require.NoError(t, err)
	require.Len(t, d.Votes, 1)
	assert.Equal(t, 250*time.Millisecond, d.Votes[0].Elapsed, "耗时必须用同一个可注入时钟计算")
	assert.Equal(t, base.Add(300*time.Millisecond), d.CreatedAt)
}
