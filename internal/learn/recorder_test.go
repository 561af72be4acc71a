package learn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/decision"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(filepath.Join(t.TempDir(), "outcomes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func outcomeDecision(id string, action decision.Action, votes ...decision.ProviderVote) decision.Decision {
	return decision.Decision{
		ID: id, Symbol: "BTC/USDT", Action: action,
		Tier: decision.TierWeighted, Confidence: 0.7, Votes: votes,
	}
}

func TestRecorderRecordAndRecent(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	d1 := outcomeDecision("d1", decision.ActionOpenLong,
		decision.ProviderVote{ProviderID: "trend", Action: decision.ActionBuy, Confidence: 0.8, Status: decision.VoteOK})
	require.NoError(t, r.Record(ctx, d1, ResultWin, 20, "ord-1", "", base))

	d2 := outcomeDecision("d2", decision.ActionCloseLong)
	require.NoError(t, r.Record(ctx, d2, ResultLoss, -5, "ord-2", "", base.Add(time.Minute)))

	recent, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d2", recent[0].DecisionID, "新记录排在最前")
	assert.Equal(t, ResultLoss, recent[0].Result)
	assert.InDelta(t, 20.0, recent[1].PnL, 1e-9)
	assert.Contains(t, recent[1].Votes, "trend", "投票摘要一并落库")
}

func TestRecorderKeepsUnknownDistinct(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	d := outcomeDecision("d3", decision.ActionOpenLong)
	require.NoError(t, r.Record(ctx, d, ResultUnknown, 0, "", "提交后断连", time.Now()))

	recent, err := r.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ResultUnknown, recent[0].Result, "模糊结局不许折叠进 win/loss")
}

func TestProviderStatsAggregation(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	okVote := func(id string, a decision.Action) decision.ProviderVote {
		return decision.ProviderVote{ProviderID: id, Action: a, Confidence: 0.7, Status: decision.VoteOK}
	}
	failedVote := decision.ProviderVote{ProviderID: "flaky", Status: decision.VoteFailed}

	// trend 两票同向：一胜一负；meanrev 一票反向
	require.NoError(t, r.Record(ctx,
		outcomeDecision("d1", decision.ActionOpenLong, okVote("trend", decision.ActionBuy), okVote("meanrev", decision.ActionSell)),
		ResultWin, 15, "", "", base))
	require.NoError(t, r.Record(ctx,
		outcomeDecision("d2", decision.ActionOpenLong, okVote("trend", decision.ActionBuy), failedVote),
		ResultLoss, -8, "", "", base.Add(time.Minute)))
	// unknown 结果整条不计入
	require.NoError(t, r.Record(ctx,
		outcomeDecision("d3", decision.ActionOpenLong, okVote("trend", decision.ActionBuy)),
		ResultUnknown, 0, "", "", base.Add(2*time.Minute)))

	stats, err := r.ProviderStats(ctx)
	require.NoError(t, err)

	byID := map[string]ProviderStat{}
	for _, st := range stats {
		byID[st.ProviderID] = st
	}

	trend := byID["trend"]
	assert.Equal(t, 2, trend.Votes)
	assert.Equal(t, 2, trend.Agreed)
	assert.Equal(t, 1, trend.Wins)
	assert.InDelta(t, 0.5, trend.WinRate, 1e-9)

	meanrev := byID["meanrev"]
	assert.Equal(t, 1, meanrev.Votes)
	assert.Equal(t, 0, meanrev.Agreed)

	_, hasFlaky := byID["flaky"]
	assert.False(t, hasFlaky, "失败票不参与统计")
}
