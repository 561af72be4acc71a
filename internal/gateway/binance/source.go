package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"quorum/internal/market"
	symbolpkg "quorum/internal/pkg/symbol"
	"quorum/internal/scheduler"

	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// Source 基于 go-binance SDK 实现 market.Source（USDT 永续合约行情）。
type Source struct {
	cfg    Config
	client *futures.Client

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{
		cfg:    final,
		client: client,
	}, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// Binance 要求无分隔符形式（ETH/USDT -> ETHUSDT）
	cleanSymbol := symbolpkg.ToExchange(symbol)

	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	svc := s.client.NewKlinesService().Symbol(cleanSymbol).Interval(interval).Limit(limit)
	kls, err := svc.Do(ctx)
	s.recordFetch(err)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", cleanSymbol, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	// 最后一根可能尚未收盘，丢掉避免用半成品K线做决策
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedKline(out, dur)
	}
	return out, nil
}

// MarkPrice 返回标记价格（paper 执行引擎用它给模拟成交定价）。
func (s *Source) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	cleanSymbol := symbolpkg.ToExchange(symbol)
	res, err := s.client.NewPremiumIndexService().Symbol(cleanSymbol).Do(ctx)
	s.recordFetch(err)
	if err != nil {
		return 0, fmt.Errorf("binance premium index %s: %w", cleanSymbol, err)
	}
	for _, idx := range res {
		if idx == nil {
			continue
		}
		if p := parseFloat(idx.MarkPrice); p > 0 {
			return p, nil
		}
	}
	return 0, fmt.Errorf("binance premium index %s: empty response", cleanSymbol)
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	return nil
}

func (s *Source) recordFetch(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Fetches++
	if err != nil {
		s.stats.FetchFails++
		s.stats.LastError = err.Error()
	}
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
