package risk

import (
	"context"
	"math"
)

// ReturnsProvider 提供某 symbol 最近 window 期的对数收益序列（时间升序）。
// 风控闸门用它评估候选仓位与现有持仓的相关性。
type ReturnsProvider interface {
	Returns(ctx context.Context, symbol string, window int) ([]float64, error)
}

const minCorrelationOverlap = 10

// correlation 计算两条收益序列的皮尔逊相关系数。
// 重叠长度不足时返回 (0, false)，调用方按"不相关"处理。
func correlation(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < minCorrelationOverlap {
		return 0, false
	}
	// 对齐尾部：最近的 n 期
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA <= 0 || varB <= 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}

// LogReturns 把价格序列转成对数收益。
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}
