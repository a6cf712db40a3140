package priceoracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/paperex/pkg/ratelimit"
)

type fakeFetcher struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeFetcher) FetchPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

func (f *fakeFetcher) FetchTickers(_ context.Context, pairs []string) ([]Ticker, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Ticker, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Ticker{Pair: p, LastPrice: f.price, At: time.Now()})
	}
	return out, nil
}

func TestGetPriceFallbackChain(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := &fakeFetcher{price: decimal.NewFromInt(100)}
	o := New(Options{
		Fetcher:    f,
		CacheTTL:   time.Minute,
		SeedPrices: map[string]decimal.Decimal{"ethEUR": decimal.NewFromInt(2000)},
		Now:        clock,
	})
	defer o.Close()

	// REST
	q, err := o.GetPrice(ctx, "btceur")
	require.NoError(t, err)
	assert.Equal(t, SourceREST, q.Source)
	assert.Equal(t, "BTCEUR", q.Pair)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)))

	// REST 失败 -> 最近价格
	f.err = errors.New("network down")
	q, err = o.GetPrice(ctx, "BTCEUR")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, q.Source)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)))

	// 缓存过期 -> 合成价
	now = now.Add(2 * time.Minute)
	q, err = o.GetPrice(ctx, "BTCEUR")
	require.NoError(t, err)
	assert.Equal(t, SourceSynthetic, q.Source)
	assert.True(t, q.Price.Equal(SyntheticPrice("BTCEUR")))

	// 参考价
	q, err = o.GetPrice(ctx, "ETHEUR")
	require.NoError(t, err)
	assert.Equal(t, SourceSeed, q.Source)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(2000)))

	// 推送价格优先，且不再访问 REST
	o.UpdateTicker(Ticker{Pair: "BTCEUR", LastPrice: decimal.NewFromInt(123), At: now})
	calls := f.calls
	q, err = o.GetPrice(ctx, "BTCEUR")
	require.NoError(t, err)
	assert.Equal(t, SourceStream, q.Source)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(123)))
	assert.Equal(t, calls, f.calls)

	_, err = o.GetPrice(ctx, " ")
	assert.Error(t, err)
}

func TestSyntheticPriceRange(t *testing.T) {
	lo, hi := decimal.NewFromInt(10), decimal.NewFromInt(1010)
	for _, p := range []string{"BTCEUR", "ETHEUR", "DOGEUSDT", "XYZEUR", ""} {
		v := SyntheticPrice(p)
		assert.True(t, v.GreaterThanOrEqual(lo) && v.LessThan(hi), "%s -> %s", p, v)
		assert.True(t, v.Equal(SyntheticPrice(strings.ToLower(p))), "deterministic, case-insensitive")
	}
}

func TestTickersFallback(t *testing.T) {
	o := New(Options{Fetcher: &fakeFetcher{err: errors.New("down")}})
	defer o.Close()
	o.UpdateTicker(Ticker{Pair: "BTCEUR", LastPrice: decimal.NewFromInt(5)})

	ts, err := o.Tickers(context.Background(), []string{"btceur", "etheur", ""})
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.True(t, ts[0].LastPrice.Equal(decimal.NewFromInt(5)))
	assert.True(t, ts[1].LastPrice.Equal(SyntheticPrice("ETHEUR")))
}

func TestBinanceClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			if r.URL.Query().Get("symbol") != "BTCEUR" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
			_, _ = w.Write([]byte(`{"symbol":"BTCEUR","price":"42000.50000000"}`))
		case "/api/v3/ticker/24hr":
			assert.Equal(t, `["BTCEUR","ETHEUR"]`, r.URL.Query().Get("symbols"))
			_, _ = w.Write([]byte(`[
{"symbol":"BTCEUR","lastPrice":"42000.5","priceChangePercent":"1.25","highPrice":"43000","lowPrice":"41000","volume":"12.5","closeTime":1700000000000},
{"symbol":"ETHEUR","lastPrice":"2100","priceChangePercent":"-0.5","highPrice":"2200","lowPrice":"2000","volume":"300","closeTime":1700000000000}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewBinanceClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	p, err := c.FetchPrice(ctx, "btceur")
	require.NoError(t, err)
	assert.Equal(t, "42000.5", p.String())

	_, err = c.FetchPrice(ctx, "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol")

	ts, err := c.FetchTickers(ctx, []string{"btceur", "etheur"})
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "1.25", ts[0].ChangePercent.String())
	assert.Equal(t, int64(1700000000000), ts[1].At.UnixMilli())
}

func TestBinanceClientRateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCEUR","price":"1"}`))
	}))
	defer srv.Close()

	c := NewBinanceClient(srv.URL, time.Second).WithLimiter(ratelimit.NewSlidingWindow(2, time.Minute))
	_, err := c.FetchPrice(context.Background(), "BTCEUR")
	require.NoError(t, err)
	_, err = c.FetchPrice(context.Background(), "BTCEUR")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), hits.Load())

	// 限流时报价降级到缓存
	o := New(Options{Fetcher: c, CacheTTL: time.Minute})
	defer o.Close()
	q, err := o.GetPrice(context.Background(), "BTCEUR")
	require.NoError(t, err)
	assert.NotEqual(t, SourceREST, q.Source)
}

func TestBinanceClientDecodesWithoutContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"symbol":"BTCEUR","price":"123.4"}`))
	}))
	defer srv.Close()

	p, err := NewBinanceClient(srv.URL, time.Second).FetchPrice(context.Background(), "BTCEUR")
	require.NoError(t, err)
	assert.Equal(t, "123.4", p.String())
}

func TestBinanceClientChargesOneWeightPerAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"boom"}`))
	}))
	defer srv.Close()

	limiter := ratelimit.NewSlidingWindow(100, time.Minute)
	c := NewBinanceClient(srv.URL, time.Second).WithLimiter(limiter)
	_, err := c.FetchPrice(context.Background(), "BTCEUR")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 98, limiter.GetRemaining())
}

type recordingSink struct {
	mu  sync.Mutex
	got []Ticker
	ch  chan struct{}
}

func (s *recordingSink) UpdateTicker(t Ticker) {
	s.mu.Lock()
	s.got = append(s.got, t)
	s.mu.Unlock()
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func TestStreamDeliversTickers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream", r.URL.Path)
		assert.Equal(t, "btceur@ticker/etheur@ticker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := `{"stream":"btceur@ticker","data":{"e":"24hrTicker","E":0,"s":"BTCEUR","p":"10","P":"0.5","c":"42000.1","C":1700000000000,"h":"43000","l":"41000","L":99,"v":"1"}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{ch: make(chan struct{}, 1)}
	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCEUR", "ETHEUR"}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-sink.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no ticker received")
	}
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.got)
	assert.Equal(t, "BTCEUR", sink.got[0].Pair)
	assert.Equal(t, "42000.1", sink.got[0].LastPrice.String())
	assert.Equal(t, "0.5", sink.got[0].ChangePercent.String())
}

func TestParseTickerMessageRejectsGarbage(t *testing.T) {
	for _, m := range []string{`not json`, `{"result":null,"id":1}`, `{"s":"BTCEUR","c":"-1"}`} {
		_, ok := parseTickerMessage([]byte(m))
		assert.False(t, ok, m)
	}
}
