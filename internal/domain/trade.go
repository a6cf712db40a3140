package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 交易领域模型
// Trade 代表一次实际的成交，与 Order 分离：每个成交的订单恰好生成一条，创建后不再修改
type Trade struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	Pair      string          `json:"pair"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Total     decimal.Decimal `json:"total"`
	Fee       decimal.Decimal `json:"fee"`
	FeeAsset  string          `json:"feeAsset"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTradeFromOrder 由已成交订单生成成交记录
func NewTradeFromOrder(id string, o *Order, feeAsset string, at time.Time) Trade {
	return Trade{
		ID:        id,
		OrderID:   o.ID,
		Pair:      o.Pair,
		Side:      o.Side,
		Price:     o.Price,
		Amount:    o.Amount,
		Total:     o.Total,
		Fee:       o.Fee,
		FeeAsset:  feeAsset,
		Timestamp: at,
	}
}
