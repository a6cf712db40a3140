package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/ledger"
	"github.com/betbot/paperex/internal/priceoracle"
	"github.com/betbot/paperex/internal/session"
	"github.com/betbot/paperex/internal/settings"
	"github.com/betbot/paperex/pkg/persistence"
)

type stubPrices struct{}

func (stubPrices) GetPrice(_ context.Context, pair string) (priceoracle.Quote, error) {
	pair = domain.NormalizePair(pair)
	if pair == "" {
		return priceoracle.Quote{}, domain.InvalidInputf("pair is empty")
	}
	return priceoracle.Quote{Pair: pair, Price: decimal.NewFromInt(100), Source: priceoracle.SourceSeed}, nil
}

func (p stubPrices) Tickers(ctx context.Context, pairs []string) ([]priceoracle.Ticker, error) {
	out := make([]priceoracle.Ticker, 0, len(pairs))
	for _, pair := range pairs {
		q, _ := p.GetPrice(ctx, pair)
		out = append(out, priceoracle.Ticker{Pair: q.Pair, LastPrice: q.Price})
	}
	return out, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store := persistence.NewMemoryStore()
	balances := map[string]decimal.Decimal{"EUR": decimal.NewFromInt(400)}
	sessions := session.NewManager(store, session.Options{
		InitialBalances:  balances,
		DefaultWatchlist: []string{"BTCEUR"},
	})
	l := ledger.New(store, sessions, stubPrices{}, ledger.Config{
		QuoteAssets:     []string{"EUR", "USDT"},
		TakerFeeRate:    decimal.RequireFromString("0.001"),
		SettleDelay:     time.Hour,
		InitialBalances: balances,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)

	return New(Config{
		Ledger:   l,
		Prices:   stubPrices{},
		Settings: settings.New(store),
		Fees:     Fees{TakerFeeRate: decimal.RequireFromString("0.001"), MakerFeeRate: decimal.RequireFromString("0.0008")},
	}).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	assert.Equal(t, 200, do(t, h, "GET", "/healthz", nil).Code)
}

func TestRequiresSession(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, "GET", "/api/account", nil)
	assert.Equal(t, 401, rec.Code)
	var e errorResponse
	decode(t, rec, &e)
	assert.Contains(t, e.Error, "unauthenticated")

	assert.Equal(t, 401, do(t, h, "POST", "/api/orders", map[string]any{"pair": "BTCEUR", "side": "buy", "price": "1", "amount": "1"}).Code)
}

func TestLogin(t *testing.T) {
	h := newTestServer(t)
	assert.Equal(t, 400, do(t, h, "POST", "/api/session", "{").Code)
	assert.Equal(t, 400, do(t, h, "POST", "/api/session", map[string]string{"email": " "}).Code)

	rec := do(t, h, "POST", "/api/session", map[string]string{"email": "demo@example.com", "password": "pw"})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	var out struct {
		AccountID string `json:"accountId"`
	}
	decode(t, rec, &out)
	assert.Equal(t, domain.AccountIDFromEmail("demo@example.com"), out.AccountID)

	rec = do(t, h, "GET", "/api/account", nil)
	require.Equal(t, 200, rec.Code)
	assert.NotContains(t, rec.Body.String(), "argon2id")

	// 错误密码
	assert.Equal(t, 400, do(t, h, "POST", "/api/session", map[string]string{"email": "demo@example.com", "password": "nope"}).Code)

	assert.Equal(t, 200, do(t, h, "DELETE", "/api/session", nil).Code)
	assert.Equal(t, 401, do(t, h, "GET", "/api/account", nil).Code)
}

func TestOrderLifecycle(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, 200, do(t, h, "POST", "/api/session", map[string]string{"email": "demo@example.com"}).Code)

	rec := do(t, h, "POST", "/api/orders", map[string]any{"pair": "BTCEUR", "side": "buy", "price": "100", "amount": "1"})
	require.Equal(t, 201, rec.Code, rec.Body.String())
	var placed struct {
		OrderID string `json:"orderId"`
	}
	decode(t, rec, &placed)
	assert.True(t, strings.HasPrefix(placed.OrderID, "ORD"))

	assert.Equal(t, 422, do(t, h, "POST", "/api/orders", map[string]any{"pair": "BTCEUR", "side": "buy", "price": "100", "amount": "10"}).Code)
	assert.Equal(t, 400, do(t, h, "POST", "/api/orders", map[string]any{"pair": "BTCEUR", "side": "buy", "price": "100", "amount": "0"}).Code)

	rec = do(t, h, "GET", "/api/orders/open", nil)
	require.Equal(t, 200, rec.Code)
	var open struct {
		Orders []domain.Order `json:"orders"`
	}
	decode(t, rec, &open)
	require.Len(t, open.Orders, 1)
	assert.Equal(t, placed.OrderID, open.Orders[0].ID)

	assert.Equal(t, 404, do(t, h, "DELETE", "/api/orders/ORDNOPE", nil).Code)
	assert.Equal(t, 200, do(t, h, "DELETE", "/api/orders/"+placed.OrderID, nil).Code)
	assert.Equal(t, 404, do(t, h, "DELETE", "/api/orders/"+placed.OrderID, nil).Code)

	rec = do(t, h, "GET", "/api/orders/history?limit=10", nil)
	require.Equal(t, 200, rec.Code)
	var hist struct {
		Orders []domain.Order `json:"orders"`
	}
	decode(t, rec, &hist)
	require.Len(t, hist.Orders, 1)
	assert.Equal(t, domain.OrderStatusCancelled, hist.Orders[0].Status)

	assert.Equal(t, 400, do(t, h, "GET", "/api/trades?limit=abc", nil).Code)
	assert.Equal(t, 200, do(t, h, "GET", "/api/trades", nil).Code)

	var acc domain.Account
	decode(t, do(t, h, "GET", "/api/account", nil), &acc)
	assert.True(t, acc.Balance("EUR").Equal(decimal.NewFromInt(400)))
}

func TestAccountEndpoints(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, 200, do(t, h, "POST", "/api/session", map[string]string{"email": "demo@example.com"}).Code)

	rec := do(t, h, "POST", "/api/account/deposit", map[string]any{"asset": "btc", "amount": "2"})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Equal(t, 400, do(t, h, "POST", "/api/account/deposit", map[string]any{"asset": "BTC", "amount": "-2"}).Code)

	rec = do(t, h, "GET", "/api/account/portfolio", nil)
	require.Equal(t, 200, rec.Code)
	var p ledger.Portfolio
	decode(t, rec, &p)
	assert.True(t, p.TotalValue.Equal(decimal.NewFromInt(600)), p.TotalValue.String())

	assert.Equal(t, 200, do(t, h, "POST", "/api/account/reset", nil).Code)
	var acc domain.Account
	decode(t, do(t, h, "GET", "/api/account", nil), &acc)
	assert.True(t, acc.Balance("BTC").IsZero())
}

func TestWatchlistAndPrices(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, 200, do(t, h, "POST", "/api/session", map[string]string{"email": "demo@example.com"}).Code)

	assert.Equal(t, 200, do(t, h, "POST", "/api/watchlist", map[string]string{"pair": "etheur"}).Code)
	assert.Equal(t, 400, do(t, h, "POST", "/api/watchlist", map[string]string{"pair": "ETHGBP"}).Code)

	rec := do(t, h, "GET", "/api/watchlist", nil)
	require.Equal(t, 200, rec.Code)
	var wl struct {
		Watchlist []string             `json:"watchlist"`
		Tickers   []priceoracle.Ticker `json:"tickers"`
	}
	decode(t, rec, &wl)
	assert.Equal(t, []string{"BTCEUR", "ETHEUR"}, wl.Watchlist)
	assert.Len(t, wl.Tickers, 2)

	assert.Equal(t, 200, do(t, h, "DELETE", "/api/watchlist/BTCEUR", nil).Code)

	rec = do(t, h, "GET", "/api/prices/btceur", nil)
	require.Equal(t, 200, rec.Code)
	var q priceoracle.Quote
	decode(t, rec, &q)
	assert.Equal(t, "BTCEUR", q.Pair)

	assert.Equal(t, 400, do(t, h, "GET", "/api/tickers", nil).Code)
	assert.Equal(t, 200, do(t, h, "GET", "/api/tickers?pairs=BTCEUR,ETHEUR", nil).Code)
}

func TestSettingsEndpoints(t *testing.T) {
	h := newTestServer(t)
	var st domain.Settings
	decode(t, do(t, h, "GET", "/api/settings", nil), &st)
	assert.Equal(t, domain.DefaultSettings(), st)

	rec := do(t, h, "PUT", "/api/settings", map[string]any{"theme": "light"})
	require.Equal(t, 200, rec.Code)
	decode(t, do(t, h, "GET", "/api/settings", nil), &st)
	assert.Equal(t, "light", st.Theme)
}

func TestFeesEndpoint(t *testing.T) {
	h := newTestServer(t)
	var fees map[string]string
	decode(t, do(t, h, "GET", "/api/fees", nil), &fees)
	assert.Equal(t, "0.001", fees["takerFeeRate"])
	assert.Equal(t, "0.0008", fees["makerFeeRate"])
}

func TestWebSocketPushesBalanceUpdates(t *testing.T) {
	h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	require.Equal(t, 200, do(t, h, "POST", "/api/session", map[string]string{"email": "demo@example.com"}).Code)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, 201, do(t, h, "POST", "/api/orders", map[string]any{"pair": "BTCEUR", "side": "buy", "price": "100", "amount": "1"}).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ledger.EventBalanceUpdated, ev.Event)
}
