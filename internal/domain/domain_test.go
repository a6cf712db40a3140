package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSplitPair(t *testing.T) {
	quotes := []string{"EUR", "USDT"}
	cases := []struct {
		pair, base, quote string
	}{
		{"BTCEUR", "BTC", "EUR"},
		{"btcusdt", "BTC", "USDT"},
		{"DOGEEUR", "DOGE", "EUR"},
	}
	for _, c := range cases {
		base, quote, err := SplitPair(c.pair, quotes)
		if err != nil {
			t.Fatalf("SplitPair(%s) error: %v", c.pair, err)
		}
		if base != c.base || quote != c.quote {
			t.Fatalf("SplitPair(%s) got=%s/%s want=%s/%s", c.pair, base, quote, c.base, c.quote)
		}
	}

	for _, bad := range []string{"", "EUR", "BTCGBP"} {
		if _, _, err := SplitPair(bad, quotes); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("SplitPair(%q) expected ErrInvalidInput, got %v", bad, err)
		}
	}
}

func TestSplitPairLongestSuffix(t *testing.T) {
	// USDT 与 USD 同时配置时应优先匹配更长的后缀
	base, quote, err := SplitPair("ETHUSDT", []string{"USD", "USDT"})
	if err != nil {
		t.Fatalf("SplitPair error: %v", err)
	}
	if base != "ETH" || quote != "USDT" {
		t.Fatalf("got=%s/%s want=ETH/USDT", base, quote)
	}
}

func TestAccountIDDeterministic(t *testing.T) {
	a := AccountIDFromEmail("demo@example.com")
	b := AccountIDFromEmail(" demo@example.com ")
	if a != b {
		t.Fatalf("account id should be stable: %s != %s", a, b)
	}
	if strings.Contains(a, "=") {
		t.Fatalf("account id should not carry padding: %s", a)
	}
}

func TestAccountDebitCredit(t *testing.T) {
	acc := NewAccount("x@y.z", map[string]decimal.Decimal{"EUR": decimal.NewFromInt(10)}, nil, time.Now())

	if err := acc.Debit("EUR", decimal.NewFromInt(11)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !acc.Balance("EUR").Equal(decimal.NewFromInt(10)) {
		t.Fatalf("failed debit must not change balance, got %s", acc.Balance("EUR"))
	}
	if err := acc.Debit("EUR", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Debit error: %v", err)
	}
	if !acc.Balance("EUR").IsZero() {
		t.Fatalf("balance got=%s want=0", acc.Balance("EUR"))
	}
	acc.Credit("BTC", decimal.RequireFromString("0.5"))
	if !acc.Balance("BTC").Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("BTC got=%s", acc.Balance("BTC"))
	}
	if !acc.Balance("XRP").IsZero() {
		t.Fatalf("unknown asset must be zero")
	}
}

func TestAccountWatchlist(t *testing.T) {
	acc := NewAccount("x@y.z", nil, []string{"BTCEUR", "ETHEUR", "btceur"}, time.Now())
	if got := strings.Join(acc.Watchlist, ","); got != "BTCEUR,ETHEUR" {
		t.Fatalf("watchlist got=%s", got)
	}
	if !acc.AddToWatchlist("SOLEUR") || acc.AddToWatchlist("SOLEUR") {
		t.Fatalf("AddToWatchlist should be set-like")
	}
	if !acc.RemoveFromWatchlist("ethEUR") || acc.RemoveFromWatchlist("ETHEUR") {
		t.Fatalf("RemoveFromWatchlist should be set-like")
	}
	if got := strings.Join(acc.Watchlist, ","); got != "BTCEUR,SOLEUR" {
		t.Fatalf("watchlist got=%s", got)
	}
}

func TestAccountRemoveOpenOrderKeepsOrder(t *testing.T) {
	acc := NewAccount("x@y.z", nil, nil, time.Now())
	acc.OpenOrders = []Order{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	o, ok := acc.RemoveOpenOrder("b")
	if !ok || o.ID != "b" {
		t.Fatalf("RemoveOpenOrder got=%v ok=%v", o.ID, ok)
	}
	if len(acc.OpenOrders) != 2 || acc.OpenOrders[0].ID != "a" || acc.OpenOrders[1].ID != "c" {
		t.Fatalf("unexpected open orders: %+v", acc.OpenOrders)
	}
	if _, ok := acc.RemoveOpenOrder("missing"); ok {
		t.Fatalf("missing order should not be removed")
	}
}

func TestAccountJSONFieldNames(t *testing.T) {
	acc := NewAccount("x@y.z", map[string]decimal.Decimal{"EUR": decimal.NewFromInt(400)}, []string{"BTCEUR"}, time.Now())
	b, err := json.Marshal(acc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"balances"`, `"openOrders"`, `"orderHistory"`, `"tradeHistory"`, `"watchlist"`, `"createdAt"`, `"lastLoginAt"`} {
		if !strings.Contains(string(b), field) {
			t.Fatalf("missing field %s in %s", field, b)
		}
	}
}

func TestIDsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewOrderID()
		if !strings.HasPrefix(id, "ORD") {
			t.Fatalf("unexpected id prefix: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = struct{}{}
	}
	if !strings.HasPrefix(NewTradeID(), "TRD") {
		t.Fatalf("unexpected trade id prefix")
	}
}

func TestStorageErrorIs(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("set", AccountKey("abc"), cause)
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should be reachable through Unwrap")
	}
	if NewStorageError("set", "k", nil) != nil {
		t.Fatalf("nil cause should produce nil error")
	}
}

func TestSessionExpired(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Session{AccountID: "a", SessionStartTime: start}
	if s.Expired(start.Add(30*time.Minute), 30*time.Minute) {
		t.Fatalf("session should still be valid at exactly the timeout")
	}
	if !s.Expired(start.Add(30*time.Minute+time.Millisecond), 30*time.Minute) {
		t.Fatalf("session should expire after the timeout")
	}
}
