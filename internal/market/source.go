package market

import "context"

type SourceStats struct {
	Fetches    int
	FetchFails int
	LastError  string
}

// Source 抽象行情来源。实现必须在 ctx 截止前返回或报错，
// 绝不允许用合成数据顶替真实行情。
type Source interface {
	// FetchHistory 拉取某 symbol 某周期最近 limit 根K线（时间升序）。
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	Stats() SourceStats

	Close() error
}

// SnapshotFetcher 把多周期历史拉取组合为一份不可变快照。
type SnapshotFetcher struct {
	Source     Source
	Timeframes []string
	Bars       int
}

func (f *SnapshotFetcher) Fetch(ctx context.Context, symbol string) (*Snapshot, error) {
	snap := &Snapshot{
		Symbol:     symbol,
		Timeframes: make(map[string][]Candle, len(f.Timeframes)),
	}
	for _, tf := range f.Timeframes {
		candles, err := f.Source.FetchHistory(ctx, symbol, tf, f.Bars)
		if err != nil {
			return nil, err
		}
		snap.Timeframes[tf] = candles
	}
	snap.CapturedAt = nowFn()
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
