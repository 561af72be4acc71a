package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationPerfectlyPositive(t *testing.T) {
	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = math.Sin(float64(i))
		b[i] = 2 * math.Sin(float64(i))
	}
	c, ok := correlation(a, b)
	require.True(t, ok)
	assert.InDelta(t, 1.0, c, 1e-9)
}

func TestCorrelationPerfectlyNegative(t *testing.T) {
	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = math.Sin(float64(i))
		b[i] = -math.Sin(float64(i))
	}
	c, ok := correlation(a, b)
	require.True(t, ok)
	assert.InDelta(t, -1.0, c, 1e-9)
}

func TestCorrelationInsufficientOverlap(t *testing.T) {
	a := []float64{0.1, -0.2, 0.3}
	b := []float64{0.1, -0.2, 0.3}
	_, ok := correlation(a, b)
	assert.False(t, ok, "重叠不足按不相关处理")
}

func TestCorrelationZeroVariance(t *testing.T) {
	a := make([]float64, 20)
	b := make([]float64, 20)
	for i := range b {
		b[i] = float64(i)
	}
	_, ok := correlation(a, b) // a 全零，方差为 0
	assert.False(t, ok)
}

func TestLogReturns(t *testing.T) {
	closes := []float64{100, 110, 99}
	r := LogReturns(closes)
	require.Len(t, r, 2)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), r[1], 1e-12)

	assert.Nil(t, LogReturns([]float64{100}))
	// 非正价格跳过，不产生 NaN
	r = LogReturns([]float64{100, 0, 110})
	assert.Len(t, r, 0)
}

func TestCurrentDrawdownUsesPeak(t *testing.T) {
	ps := portfolio(9000)
	ps.PeakEquity = 10000
	assert.InDelta(t, 0.1, CurrentDrawdown(&ps), 1e-9)

	// 净值创新高：回撤为 0
	ps = portfolio(11000)
	ps.PeakEquity = 10000
	assert.Zero(t, CurrentDrawdown(&ps))
}
