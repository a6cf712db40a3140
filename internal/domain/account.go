package domain

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account 单个用户的余额、订单与历史。只能通过 Ledger 修改。
type Account struct {
	ID           string                     `json:"id"`
	Email        string                     `json:"email"`
	PasswordHash string                     `json:"passwordHash,omitempty"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	OpenOrders   []Order                    `json:"openOrders"`
	OrderHistory []Order                    `json:"orderHistory"` // 终态订单，最新在前
	TradeHistory []Trade                    `json:"tradeHistory"` // 最新在前
	Watchlist    []string                   `json:"watchlist"`
	CreatedAt    time.Time                  `json:"createdAt"`
	LastLoginAt  time.Time                  `json:"lastLoginAt"`
}

// AccountIDFromEmail 由邮箱确定性地推导账户 ID（同一邮箱永远得到同一 ID）
func AccountIDFromEmail(email string) string {
	return base64.RawStdEncoding.EncodeToString([]byte(strings.TrimSpace(email)))
}

// NewAccount 创建带初始余额和默认自选的新账户
func NewAccount(email string, balances map[string]decimal.Decimal, watchlist []string, now time.Time) *Account {
	a := &Account{
		ID:           AccountIDFromEmail(email),
		Email:        strings.TrimSpace(email),
		Balances:     CloneBalances(balances),
		OpenOrders:   []Order{},
		OrderHistory: []Order{},
		TradeHistory: []Trade{},
		Watchlist:    []string{},
		CreatedAt:    now,
		LastLoginAt:  now,
	}
	for _, p := range watchlist {
		a.AddToWatchlist(p)
	}
	return a
}

// Normalize 补齐反序列化后可能为 nil 的集合
func (a *Account) Normalize() {
	if a.Balances == nil {
		a.Balances = map[string]decimal.Decimal{}
	}
	if a.OpenOrders == nil {
		a.OpenOrders = []Order{}
	}
	if a.OrderHistory == nil {
		a.OrderHistory = []Order{}
	}
	if a.TradeHistory == nil {
		a.TradeHistory = []Trade{}
	}
	if a.Watchlist == nil {
		a.Watchlist = []string{}
	}
}

// Balance 返回某币种余额，未知币种为 0
func (a *Account) Balance(asset string) decimal.Decimal {
	if v, ok := a.Balances[asset]; ok {
		return v
	}
	return decimal.Zero
}

// Credit 增加余额
func (a *Account) Credit(asset string, amount decimal.Decimal) {
	if a.Balances == nil {
		a.Balances = map[string]decimal.Decimal{}
	}
	a.Balances[asset] = a.Balance(asset).Add(amount)
}

// Debit 扣减余额，余额不足时返回 ErrInsufficientFunds 且不做修改
func (a *Account) Debit(asset string, amount decimal.Decimal) error {
	next := a.Balance(asset).Sub(amount)
	if next.IsNegative() {
		return ErrInsufficientFunds
	}
	if a.Balances == nil {
		a.Balances = map[string]decimal.Decimal{}
	}
	a.Balances[asset] = next
	return nil
}

// OpenOrderIndex 返回开放订单的下标，不存在返回 -1
func (a *Account) OpenOrderIndex(orderID string) int {
	for i := range a.OpenOrders {
		if a.OpenOrders[i].ID == orderID {
			return i
		}
	}
	return -1
}

// RemoveOpenOrder 从开放订单中移除并返回该订单
func (a *Account) RemoveOpenOrder(orderID string) (Order, bool) {
	i := a.OpenOrderIndex(orderID)
	if i < 0 {
		return Order{}, false
	}
	o := a.OpenOrders[i]
	a.OpenOrders = append(a.OpenOrders[:i:i], a.OpenOrders[i+1:]...)
	return o, true
}

// PrependOrderHistory 终态订单放到历史最前面
func (a *Account) PrependOrderHistory(o Order) {
	a.OrderHistory = append([]Order{o}, a.OrderHistory...)
}

// PrependTrade 成交记录放到最前面
func (a *Account) PrependTrade(t Trade) {
	a.TradeHistory = append([]Trade{t}, a.TradeHistory...)
}

// AddToWatchlist 加入自选，已存在返回 false
func (a *Account) AddToWatchlist(pair string) bool {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return false
	}
	for _, p := range a.Watchlist {
		if p == pair {
			return false
		}
	}
	a.Watchlist = append(a.Watchlist, pair)
	return true
}

// RemoveFromWatchlist 移出自选，不存在返回 false
func (a *Account) RemoveFromWatchlist(pair string) bool {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	for i, p := range a.Watchlist {
		if p == pair {
			a.Watchlist = append(a.Watchlist[:i:i], a.Watchlist[i+1:]...)
			return true
		}
	}
	return false
}

// CloneBalances 复制余额表
func CloneBalances(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
