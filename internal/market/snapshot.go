package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Snapshot 是单个决策周期的行情快照：symbol + 多周期K线 + 采集时间。
// 构造后不可变；每个周期由数据源新建，过期快照必须被主循环拒绝。
type Snapshot struct {
	Symbol     string
	Timeframes map[string][]Candle
	CapturedAt time.Time
}

// LastPrice 返回基准周期最后一根K线的收盘价。
func (s *Snapshot) LastPrice(baseTimeframe string) float64 {
	candles := s.Candles(baseTimeframe)
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// Candles 按周期取K线（大小写不敏感）。
func (s *Snapshot) Candles(timeframe string) []Candle {
	if s == nil || len(s.Timeframes) == 0 {
		return nil
	}
	if c, ok := s.Timeframes[timeframe]; ok {
		return c
	}
	lower := strings.ToLower(strings.TrimSpace(timeframe))
	for tf, c := range s.Timeframes {
		if strings.ToLower(tf) == lower {
			return c
		}
	}
	return nil
}

// TimeframeKeys 返回排序后的周期列表，保证遍历顺序稳定。
func (s *Snapshot) TimeframeKeys() []string {
	keys := make([]string, 0, len(s.Timeframes))
	for tf := range s.Timeframes {
		keys = append(keys, tf)
	}
	sort.Strings(keys)
	return keys
}

// Validate 校验快照结构：symbol 非空、每个周期的K线严格按时间递增且不重叠。
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot 为空")
	}
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("snapshot 缺少 symbol")
	}
	if len(s.Timeframes) == 0 {
		return fmt.Errorf("snapshot 不含任何周期数据 (%s)", s.Symbol)
	}
	for tf, candles := range s.Timeframes {
		if len(candles) == 0 {
			return fmt.Errorf("snapshot %s 周期 %s 无K线", s.Symbol, tf)
		}
		for i := 1; i < len(candles); i++ {
			prev, cur := candles[i-1], candles[i]
			if cur.OpenTime <= prev.OpenTime {
				return fmt.Errorf("snapshot %s 周期 %s K线乱序: #%d open_time=%d <= #%d open_time=%d",
					s.Symbol, tf, i, cur.OpenTime, i-1, prev.OpenTime)
			}
			if prev.CloseTime > cur.OpenTime {
				return fmt.Errorf("snapshot %s 周期 %s K线重叠: #%d close_time=%d > #%d open_time=%d",
					s.Symbol, tf, i-1, prev.CloseTime, i, cur.OpenTime)
			}
		}
	}
	return nil
}

// Age 返回快照距 now 的年龄。
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil || s.CapturedAt.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(s.CapturedAt)
}

// Fresh 判断快照是否仍在新鲜度阈值内。
func (s *Snapshot) Fresh(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	age := s.Age(now)
	return age >= 0 && age <= threshold
}
