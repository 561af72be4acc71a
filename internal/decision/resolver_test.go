package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okVote(id string, action Action, conf float64) ProviderVote {
	return ProviderVote{ProviderID: id, Action: action, Confidence: conf, Status: VoteOK}
}

func failedVote(id string) ProviderVote {
	return ProviderVote{ProviderID: id, Action: ActionHold, Status: VoteFailed, Error: "boom"}
}

func TestResolveWeightedRenormalizesOverSurvivors(t *testing.T) {
	// 三个 Provider 权重 0.5/0.3/0.2，其中一个失败：
	// 权重只在存活者之间重新归一，失败者的份额不摊给别人。
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.8),
		okVote("b", ActionBuy, 0.6),
		failedVote("c"),
	}
	weights := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}

	r, err := resolveVotes(votes, weights, 0.6)
	require.NoError(t, err)
	assert.Equal(t, TierWeighted, r.Tier)
	assert.Equal(t, ActionBuy, r.Action)

	sum := 0.0
	for _, w := range r.WeightsUsed {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.5/0.8, r.WeightsUsed["a"], 1e-9)
	assert.InDelta(t, 0.3/0.8, r.WeightsUsed["b"], 1e-9)
	_, hasFailed := r.WeightsUsed["c"]
	assert.False(t, hasFailed, "失败者不应出现在最终权重里")
}

func TestResolveWeightedPicksHigherScore(t *testing.T) {
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.9),
		okVote("b", ActionSell, 0.9),
		okVote("c", ActionSell, 0.9),
	}
	weights := map[string]float64{"a": 0.4, "b": 0.3, "c": 0.3}

	r, err := resolveVotes(votes, weights, 0.6)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, r.Action)
	assert.Equal(t, TierWeighted, r.Tier)
}

func TestResolveTieGoesToHold(t *testing.T) {
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.8),
		okVote("b", ActionSell, 0.8),
	}
	weights := map[string]float64{"a": 0.5, "b": 0.5}

	r, err := resolveVotes(votes, weights, 0.6)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, r.Action, "得分并列必须偏向 hold")
}

func TestResolveFallsBackToMajorityWithoutWeights(t *testing.T) {
	// 没有任何正权重：weighted 档不可用，落到 majority
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.7),
		okVote("b", ActionBuy, 0.5),
		okVote("c", ActionSell, 0.9),
	}
	r, err := resolveVotes(votes, nil, 0.6)
	require.NoError(t, err)
	assert.Equal(t, TierMajority, r.Tier)
	assert.Equal(t, ActionBuy, r.Action)
	assert.InDelta(t, 0.6, r.Confidence, 1e-9)
}

func TestResolveMajorityTieGoesToHold(t *testing.T) {
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.9),
		okVote("b", ActionSell, 0.9),
	}
	r, err := resolveVotes(votes, nil, 0.6)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, r.Action)
}

func TestResolveSingleSurvivorCapsConfidence(t *testing.T) {
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.95),
		failedVote("b"),
		failedVote("c"),
	}
	weights := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}

	r, err := resolveVotes(votes, weights, 0.6)
	require.NoError(t, err)
	assert.Equal(t, TierSingle, r.Tier)
	assert.Equal(t, ActionBuy, r.Action)
	assert.InDelta(t, 0.6, r.Confidence, 1e-9, "单 Provider 置信度必须压到上限")
}

func TestResolveAllFailed(t *testing.T) {
	votes := []ProviderVote{failedVote("a"), failedVote("b")}
	_, err := resolveVotes(votes, nil, 0.6)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestResolveDeterministic(t *testing.T) {
	votes := []ProviderVote{
		okVote("a", ActionBuy, 0.7),
		okVote("b", ActionSell, 0.6),
		okVote("c", ActionHold, 0.5),
	}
	weights := map[string]float64{"a": 0.4, "b": 0.35, "c": 0.25}

	first, err := resolveVotes(votes, weights, 0.6)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := resolveVotes(votes, weights, 0.6)
		require.NoError(t, err)
		assert.Equal(t, first.Action, again.Action)
		assert.Equal(t, first.Tier, again.Tier)
		assert.InDelta(t, first.Confidence, again.Confidence, 1e-12)
	}
}
