package priceoracle

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/paperex/pkg/ratelimit"
)

// ErrRateLimited 本地请求权重预算已用完，调用方应降级到缓存
var ErrRateLimited = errors.New("binance: request weight budget exhausted")

// 每分钟请求权重预算（低于 Binance 的 IP 上限，给同机其他程序留余量）
const defaultWeightPerMinute = 1200

// BinanceClient Binance 公共行情 REST 客户端（无需鉴权）
type BinanceClient struct {
	client  *resty.Client
	limiter ratelimit.RateLimiter
}

// NewBinanceClient 创建客户端
func NewBinanceClient(host string, timeout time.Duration) *BinanceClient {
	host = strings.TrimSuffix(host, "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	// 不重试：每次请求只扣一次权重
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &BinanceClient{
		client:  client,
		limiter: ratelimit.NewSlidingWindow(defaultWeightPerMinute, time.Minute),
	}
}

// WithLimiter 替换请求权重限流器
func (c *BinanceClient) WithLimiter(l ratelimit.RateLimiter) *BinanceClient {
	c.limiter = l
	return c
}

// tickers24hWeight /api/v3/ticker/24hr 按 symbol 数计的权重
func tickers24hWeight(n int) int {
	switch {
	case n <= 20:
		return 2 * n
	case n <= 100:
		return 40
	default:
		return 80
	}
}

type tickerPriceResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type ticker24hResp struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	CloseTime          int64  `json:"closeTime"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// FetchPrice GET /api/v3/ticker/price?symbol=BTCEUR
func (c *BinanceClient) FetchPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	if !c.limiter.AllowN(2) {
		return decimal.Zero, ErrRateLimited
	}
	var out tickerPriceResp
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", strings.ToUpper(pair)).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "ticker price %s", pair)
	}
	if resp.IsError() {
		return decimal.Zero, errors.Errorf("ticker price %s: status=%d code=%d msg=%s", pair, resp.StatusCode(), apiErr.Code, apiErr.Msg)
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse price %q", out.Price)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("ticker price %s: non-positive price %s", pair, out.Price)
	}
	return price, nil
}

// FetchTickers GET /api/v3/ticker/24hr?symbols=["BTCEUR",...]
func (c *BinanceClient) FetchTickers(ctx context.Context, pairs []string) ([]Ticker, error) {
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, strings.ToUpper(p))
	}
	raw, err := json.Marshal(symbols)
	if err != nil {
		return nil, err
	}
	if !c.limiter.AllowN(tickers24hWeight(len(symbols))) {
		return nil, ErrRateLimited
	}

	var out []ticker24hResp
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", string(raw)).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/v3/ticker/24hr")
	if err != nil {
		return nil, errors.Wrap(err, "ticker 24hr")
	}
	if resp.IsError() {
		return nil, errors.Errorf("ticker 24hr: status=%d code=%d msg=%s", resp.StatusCode(), apiErr.Code, apiErr.Msg)
	}

	tickers := make([]Ticker, 0, len(out))
	for _, r := range out {
		t, err := r.toTicker()
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

func (r ticker24hResp) toTicker() (Ticker, error) {
	t := Ticker{Pair: strings.ToUpper(r.Symbol)}
	var err error
	if t.LastPrice, err = decimal.NewFromString(r.LastPrice); err != nil {
		return Ticker{}, errors.Wrapf(err, "parse lastPrice %s", r.Symbol)
	}
	t.ChangePercent = parseOrZero(r.PriceChangePercent)
	t.High = parseOrZero(r.HighPrice)
	t.Low = parseOrZero(r.LowPrice)
	t.Volume = parseOrZero(r.Volume)
	if r.CloseTime > 0 {
		t.At = time.UnixMilli(r.CloseTime)
	} else {
		t.At = time.Now()
	}
	return t, nil
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
