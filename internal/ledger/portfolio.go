package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/betbot/paperex/internal/priceoracle"
)

// Holding 单个币种的持仓估值
type Holding struct {
	Asset      string             `json:"asset"`
	Amount     decimal.Decimal    `json:"amount"`
	Price      decimal.Decimal    `json:"price"`
	Value      decimal.Decimal    `json:"value"`
	Allocation decimal.Decimal    `json:"allocation"` // 百分比，两位小数
	Source     priceoracle.Source `json:"source,omitempty"`
}

// Portfolio 账户估值（派生数据，不持久化）
type Portfolio struct {
	ValuationAsset string          `json:"valuationAsset"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	Holdings       []Holding       `json:"holdings"`
}

var hundred = decimal.NewFromInt(100)

// Portfolio 以第一个计价币估值所有正余额：计价币按 1 计，其余按 <asset><quote> 询价
func (l *Ledger) Portfolio(ctx context.Context) (*Portfolio, error) {
	acc, err := l.Account(ctx)
	if err != nil {
		return nil, err
	}
	valuation := l.cfg.QuoteAssets[0]
	quotes := make(map[string]struct{}, len(l.cfg.QuoteAssets))
	for _, q := range l.cfg.QuoteAssets {
		quotes[q] = struct{}{}
	}

	p := &Portfolio{ValuationAsset: valuation, TotalValue: decimal.Zero, Holdings: []Holding{}}
	// 询价在循环外进行，不阻塞账本
	for asset, amount := range acc.Balances {
		if !amount.IsPositive() {
			continue
		}
		h := Holding{Asset: asset, Amount: amount, Price: decimal.NewFromInt(1)}
		if _, isQuote := quotes[asset]; !isQuote {
			q, err := l.prices.GetPrice(ctx, asset+valuation)
			if err != nil {
				return nil, err
			}
			h.Price = q.Price
			h.Source = q.Source
		}
		h.Value = amount.Mul(h.Price)
		p.TotalValue = p.TotalValue.Add(h.Value)
		p.Holdings = append(p.Holdings, h)
	}

	for i := range p.Holdings {
		if p.TotalValue.IsPositive() {
			p.Holdings[i].Allocation = p.Holdings[i].Value.Div(p.TotalValue).Mul(hundred).Round(2)
		}
	}
	sort.Slice(p.Holdings, func(i, j int) bool {
		if !p.Holdings[i].Value.Equal(p.Holdings[j].Value) {
			return p.Holdings[i].Value.GreaterThan(p.Holdings[j].Value)
		}
		return p.Holdings[i].Asset < p.Holdings[j].Asset
	})
	return p, nil
}
