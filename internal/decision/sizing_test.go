package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizingCfg() SizingConfig {
	return SizingConfig{
		RiskPerTradePct: 0.01,
		DefaultStopPct:  0.02,
		MinStopPct:      0.005,
		TakeProfitRatio: 2.0,
	}
}

func TestComputeSizingLong(t *testing.T) {
	// 余额 10000，单笔风险 1%，入场 100，止损距离 2%：
	// 风险金额 100，止损距离 2 -> 仓位 50
	r, err := computeSizing(ActionOpenLong, 100, 10000, 0.02, sizingCfg())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, r.Size, 1e-9)
	assert.InDelta(t, 98.0, r.StopLoss, 1e-9)
	assert.InDelta(t, 104.0, r.TakeProfit, 1e-9)
}

func TestComputeSizingShortStopAboveEntry(t *testing.T) {
	// short 的止损必须在入场价上方、止盈在下方
	r, err := computeSizing(ActionOpenShort, 100, 10000, 0.02, sizingCfg())
	require.NoError(t, err)
	assert.InDelta(t, 102.0, r.StopLoss, 1e-9)
	assert.InDelta(t, 96.0, r.TakeProfit, 1e-9)
	assert.Greater(t, r.StopLoss, 100.0)
	assert.Less(t, r.TakeProfit, 100.0)
	assert.InDelta(t, 50.0, r.Size, 1e-9)
}

func TestComputeSizingAppliesStopFloor(t *testing.T) {
	// Provider 建议 0.1% 止损，低于 0.5% 下限：距离被抬到下限，
	// 仓位随之缩小而不是发散
	r, err := computeSizing(ActionOpenLong, 100, 10000, 0.001, sizingCfg())
	require.NoError(t, err)
	assert.InDelta(t, 99.5, r.StopLoss, 1e-9)
	assert.InDelta(t, 200.0, r.Size, 1e-9) // 100 / 0.5
}

func TestComputeSizingUsesDefaultStopWhenUnsuggested(t *testing.T) {
	r, err := computeSizing(ActionOpenLong, 100, 10000, 0, sizingCfg())
	require.NoError(t, err)
	assert.InDelta(t, 98.0, r.StopLoss, 1e-9)
}

func TestComputeSizingRejectsBadInput(t *testing.T) {
	_, err := computeSizing(ActionOpenLong, 0, 10000, 0.02, sizingCfg())
	assert.ErrorIs(t, err, ErrInvalidSizingInput)

	_, err = computeSizing(ActionOpenLong, 100, 0, 0.02, sizingCfg())
	assert.ErrorIs(t, err, ErrInvalidSizingInput)

	_, err = computeSizing(ActionHold, 100, 10000, 0.02, sizingCfg())
	assert.ErrorIs(t, err, ErrInvalidSizingInput)

	bad := sizingCfg()
	bad.RiskPerTradePct = 1.5
	_, err = computeSizing(ActionOpenLong, 100, 10000, 0.02, bad)
	assert.ErrorIs(t, err, ErrInvalidSizingInput)
}

func TestDecisionValidateStopSides(t *testing.T) {
	size, sl, tp := 1.0, 102.0, 96.0
	d := Decision{
		ID: "t", Symbol: "BTC/USDT", Action: ActionOpenShort,
		EntryPrice: 100, Size: &size, StopLoss: &sl, TakeProfit: &tp,
	}
	require.NoError(t, d.Validate())

	// short 止损放到入场价下方必须被拒绝
	badSL := 98.0
	d.StopLoss = &badSL
	assert.Error(t, d.Validate())
}
