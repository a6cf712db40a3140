package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide 解析订单方向（大小写不敏感）
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", InvalidInputf("unknown side %q", s)
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// ParseOrderType 解析订单类型，空字符串视为 limit
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderTypeLimit:
		return OrderTypeLimit, nil
	case OrderTypeMarket:
		return OrderTypeMarket, nil
	}
	return "", InvalidInputf("unknown order type %q", s)
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"      // 开放中（资金已预留，等待结算）
	OrderStatusFilled    OrderStatus = "filled"    // 已成交
	OrderStatusCancelled OrderStatus = "cancelled" // 已取消
)

// Order 订单领域模型
//
// 状态机只有两条边：open -> filled，open -> cancelled，终态不再变化。
// 任何时刻 Filled + Remaining == Amount。
type Order struct {
	ID          string          `json:"id"`
	Pair        string          `json:"pair"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Total       decimal.Decimal `json:"total"` // price * amount
	Fee         decimal.Decimal `json:"fee"`   // 结算时计算，open 状态下为 0
	Status      OrderStatus     `json:"status"`
	Filled      decimal.Decimal `json:"filled"`
	Remaining   decimal.Decimal `json:"remaining"`
	CreatedAt   time.Time       `json:"createdAt"`
	ExecutedAt  *time.Time      `json:"executedAt,omitempty"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
}
