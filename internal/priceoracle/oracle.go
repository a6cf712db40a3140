package priceoracle

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/pkg/cache"
)

var log = logrus.WithField("component", "price_oracle")

// Source 价格来源
type Source string

const (
	SourceStream    Source = "stream"
	SourceREST      Source = "rest"
	SourceCache     Source = "cache"
	SourceSeed      Source = "seed"
	SourceSynthetic Source = "synthetic"
)

// Quote 一次报价
type Quote struct {
	Pair   string          `json:"pair"`
	Price  decimal.Decimal `json:"price"`
	Source Source          `json:"source"`
	At     time.Time       `json:"at"`
}

// Ticker 24h 行情快照
type Ticker struct {
	Pair          string          `json:"pair"`
	LastPrice     decimal.Decimal `json:"lastPrice"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        decimal.Decimal `json:"volume"`
	At            time.Time       `json:"at"`
}

// PriceFetcher 远端价格源（一般是 Binance REST）
type PriceFetcher interface {
	FetchPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	FetchTickers(ctx context.Context, pairs []string) ([]Ticker, error)
}

// Options 构造参数
type Options struct {
	Fetcher    PriceFetcher                // 为 nil 时跳过 REST
	CacheTTL   time.Duration               // 最近价格缓存时间
	LiveMaxAge time.Duration               // 推送价格的最大年龄，超过则视为过期
	SeedPrices map[string]decimal.Decimal  // 参考价
	Now        func() time.Time
}

// Oracle 价格查询：推送缓存 -> REST -> 最近价格 -> 参考价 -> 合成价
//
// 对格式正确的交易对永远返回价格，行情不可用不会让下单失败。
type Oracle struct {
	fetcher    PriceFetcher
	cache      *cache.PriceCache
	liveMaxAge time.Duration
	seeds      map[string]decimal.Decimal
	now        func() time.Time

	mu   sync.RWMutex
	live map[string]Ticker
}

// New 创建 Oracle
func New(opts Options) *Oracle {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LiveMaxAge <= 0 {
		opts.LiveMaxAge = time.Minute
	}
	seeds := make(map[string]decimal.Decimal, len(opts.SeedPrices))
	for k, v := range opts.SeedPrices {
		seeds[domain.NormalizePair(k)] = v
	}
	return &Oracle{
		fetcher:    opts.Fetcher,
		cache:      cache.NewPriceCache(opts.CacheTTL).WithClock(opts.Now),
		liveMaxAge: opts.LiveMaxAge,
		seeds:      seeds,
		now:        opts.Now,
		live:       make(map[string]Ticker),
	}
}

// Close 释放后台资源
func (o *Oracle) Close() {
	o.cache.Stop()
}

// GetPrice 查询交易对当前价格
func (o *Oracle) GetPrice(ctx context.Context, pair string) (Quote, error) {
	pair = domain.NormalizePair(pair)
	if pair == "" {
		return Quote{}, domain.InvalidInputf("pair is empty")
	}
	now := o.now()

	o.mu.RLock()
	t, ok := o.live[pair]
	o.mu.RUnlock()
	if ok && now.Sub(t.At) <= o.liveMaxAge && t.LastPrice.IsPositive() {
		return Quote{Pair: pair, Price: t.LastPrice, Source: SourceStream, At: t.At}, nil
	}

	if o.fetcher != nil {
		price, err := o.fetcher.FetchPrice(ctx, pair)
		if err == nil {
			o.cache.Set(pair, cache.PricePoint{Price: price, At: now})
			return Quote{Pair: pair, Price: price, Source: SourceREST, At: now}, nil
		}
		log.Debugf("REST 价格不可用，降级: pair=%s err=%v", pair, err)
	}

	if p, ok := o.cache.Get(pair); ok {
		return Quote{Pair: pair, Price: p.Price, Source: SourceCache, At: p.At}, nil
	}
	if p, ok := o.seeds[pair]; ok && p.IsPositive() {
		return Quote{Pair: pair, Price: p, Source: SourceSeed, At: now}, nil
	}
	return Quote{Pair: pair, Price: SyntheticPrice(pair), Source: SourceSynthetic, At: now}, nil
}

// UpdateTicker 推送行情写入（Stream 调用）
func (o *Oracle) UpdateTicker(t Ticker) {
	t.Pair = domain.NormalizePair(t.Pair)
	if t.Pair == "" || !t.LastPrice.IsPositive() {
		return
	}
	if t.At.IsZero() {
		t.At = o.now()
	}
	o.mu.Lock()
	o.live[t.Pair] = t
	o.mu.Unlock()
	o.cache.Set(t.Pair, cache.PricePoint{Price: t.LastPrice, At: t.At})
}

// Tickers 返回一组交易对的 24h 行情；REST 不可用时用已知价格拼出快照
func (o *Oracle) Tickers(ctx context.Context, pairs []string) ([]Ticker, error) {
	norm := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p = domain.NormalizePair(p); p != "" {
			norm = append(norm, p)
		}
	}
	if len(norm) == 0 {
		return []Ticker{}, nil
	}

	if o.fetcher != nil {
		tickers, err := o.fetcher.FetchTickers(ctx, norm)
		if err == nil {
			for _, t := range tickers {
				o.cache.Set(t.Pair, cache.PricePoint{Price: t.LastPrice, At: t.At})
			}
			return tickers, nil
		}
		log.Debugf("REST 24h 行情不可用，降级: err=%v", err)
	}

	out := make([]Ticker, 0, len(norm))
	for _, p := range norm {
		o.mu.RLock()
		t, ok := o.live[p]
		o.mu.RUnlock()
		if ok {
			out = append(out, t)
			continue
		}
		q, err := o.GetPrice(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, Ticker{Pair: p, LastPrice: q.Price, At: q.At})
	}
	return out, nil
}

// SyntheticPrice 由交易对哈希得到的确定性价格，范围 [10, 1010)
func SyntheticPrice(pair string) decimal.Decimal {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(pair)))
	cents := int64(h.Sum32() % 100000)
	return decimal.New(cents, -2).Add(decimal.NewFromInt(10))
}
