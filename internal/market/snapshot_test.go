package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candleAt(openMs int64, close float64) Candle {
	return Candle{
		OpenTime:  openMs,
		CloseTime: openMs + 59_999,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1,
	}
}

func validSnapshot() *Snapshot {
	return &Snapshot{
		Symbol: "BTC/USDT",
		Timeframes: map[string][]Candle{
			"5m": {candleAt(0, 100), candleAt(60_000, 101), candleAt(120_000, 102)},
		},
		CapturedAt: time.Now(),
	}
}

func TestSnapshotValidate(t *testing.T) {
	require.NoError(t, validSnapshot().Validate())

	s := validSnapshot()
	s.Symbol = ""
	assert.Error(t, s.Validate())

	s = validSnapshot()
	s.Timeframes = nil
	assert.Error(t, s.Validate())

	s = validSnapshot()
	s.Timeframes["5m"] = []Candle{}
	assert.Error(t, s.Validate())
}

func TestSnapshotValidateRejectsOutOfOrder(t *testing.T) {
	s := validSnapshot()
	s.Timeframes["5m"] = []Candle{candleAt(60_000, 101), candleAt(0, 100)}
	assert.Error(t, s.Validate())
}

func TestSnapshotValidateRejectsOverlap(t *testing.T) {
	s := validSnapshot()
	// 第一根收盘时间越过第二根的开盘时间
	c1 := candleAt(0, 100)
	c1.CloseTime = 90_000
	s.Timeframes["5m"] = []Candle{c1, candleAt(60_000, 101)}
	assert.Error(t, s.Validate())
}

func TestSnapshotFreshness(t *testing.T) {
	now := time.Now()
	s := validSnapshot()
	s.CapturedAt = now.Add(-30 * time.Second)

	assert.True(t, s.Fresh(now, time.Minute))
	assert.False(t, s.Fresh(now, 10*time.Second), "过期快照必须被判定为不新鲜")
	assert.False(t, s.Fresh(now, 0), "零阈值永远不新鲜")
}

func TestSnapshotLastPrice(t *testing.T) {
	s := validSnapshot()
	assert.InDelta(t, 102.0, s.LastPrice("5m"), 1e-9)
	assert.Zero(t, s.LastPrice("1h"), "缺失周期返回 0 而不是瞎猜")
}

func TestSnapshotCandlesCaseInsensitive(t *testing.T) {
	s := validSnapshot()
	assert.Len(t, s.Candles("5M"), 3)
}
