package ledger

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/metrics"
)

// PlaceOrderRequest 下单请求
type PlaceOrderRequest struct {
	Pair   string          `json:"pair"`
	Side   string          `json:"side"`
	Type   string          `json:"type"`            // limit（默认）| market
	Price  decimal.Decimal `json:"price"`           // limit 必填，market 忽略
	Amount decimal.Decimal `json:"amount"`
}

// validatedOrder 校验通过、价格已确定的下单参数
type validatedOrder struct {
	Pair   string
	Base   string
	Quote  string
	Side   domain.Side
	Type   domain.OrderType
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// PlaceOrder 下单：预留资金、记录订单并安排延迟结算，返回订单 ID
func (l *Ledger) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error) {
	v, err := l.validatePlaceOrder(ctx, req)
	if err != nil {
		metrics.OrdersRejected.Add(1)
		return "", err
	}
	ch := make(chan result[string], 1)
	return call(ctx, l, &PlaceOrderCommand{Context: ctx, Order: v, Reply: ch}, ch)
}

// validatePlaceOrder 校验下单参数（在调用方 goroutine 执行，市价单在这里询价）
func (l *Ledger) validatePlaceOrder(ctx context.Context, req PlaceOrderRequest) (validatedOrder, error) {
	pair := domain.NormalizePair(req.Pair)
	base, quote, err := domain.SplitPair(pair, l.cfg.QuoteAssets)
	if err != nil {
		return validatedOrder{}, err
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return validatedOrder{}, err
	}
	typ, err := domain.ParseOrderType(req.Type)
	if err != nil {
		return validatedOrder{}, err
	}
	if !req.Amount.IsPositive() {
		return validatedOrder{}, domain.InvalidInputf("amount must be positive, got %s", req.Amount)
	}

	price := req.Price
	if typ == domain.OrderTypeMarket {
		q, err := l.prices.GetPrice(ctx, pair)
		if err != nil {
			return validatedOrder{}, err
		}
		price = q.Price
	}
	if !price.IsPositive() {
		return validatedOrder{}, domain.InvalidInputf("price must be positive, got %s", price)
	}

	return validatedOrder{
		Pair:   pair,
		Base:   base,
		Quote:  quote,
		Side:   side,
		Type:   typ,
		Price:  price,
		Amount: req.Amount,
	}, nil
}

// handlePlaceOrder 处理下单命令
func (l *Ledger) handlePlaceOrder(cmd *PlaceOrderCommand) {
	ctx := cmd.Context
	acc, err := l.currentAccount(ctx)
	if err != nil {
		metrics.OrdersRejected.Add(1)
		reply(cmd.Reply, "", err)
		return
	}

	v := cmd.Order
	total := v.Price.Mul(v.Amount)

	// 1. 预留资金
	switch v.Side {
	case domain.SideBuy:
		// 买单结算时还要从计价币扣手续费，这里连同已挂买单的手续费一起检查，保证结算后余额不为负
		fee := total.Mul(l.cfg.TakerFeeRate)
		available := acc.Balance(v.Quote).Sub(l.heldFees(acc, v.Quote))
		if available.LessThan(total.Add(fee)) {
			metrics.OrdersRejected.Add(1)
			reply(cmd.Reply, "", errors.Wrapf(domain.ErrInsufficientFunds,
				"need %s %s (incl. fee %s), available %s", total.Add(fee), v.Quote, fee, available))
			return
		}
		if err := acc.Debit(v.Quote, total); err != nil {
			metrics.OrdersRejected.Add(1)
			reply(cmd.Reply, "", err)
			return
		}
	case domain.SideSell:
		if err := acc.Debit(v.Base, v.Amount); err != nil {
			metrics.OrdersRejected.Add(1)
			reply(cmd.Reply, "", errors.Wrapf(err, "need %s %s, available %s", v.Amount, v.Base, acc.Balance(v.Base)))
			return
		}
	}

	// 2. 记录订单
	order := domain.Order{
		ID:        domain.NewOrderID(),
		Pair:      v.Pair,
		Side:      v.Side,
		Type:      v.Type,
		Price:     v.Price,
		Amount:    v.Amount,
		Total:     total,
		Fee:       decimal.Zero,
		Status:    domain.OrderStatusOpen,
		Filled:    decimal.Zero,
		Remaining: v.Amount,
		CreatedAt: l.now(),
	}
	acc.OpenOrders = append(acc.OpenOrders, order)

	// 3. 余额变更与订单插入一次写入
	if err := l.saveAccount(ctx, acc); err != nil {
		ledgerLog.Errorf("下单持久化失败: account=%s err=%v", acc.ID, err)
		reply(cmd.Reply, "", err)
		return
	}

	// 4. 安排延迟结算
	l.schedule(acc.ID, order.ID)
	metrics.OrdersPlaced.Add(1)
	ledgerLog.Infof("下单: id=%s %s %s %s @ %s total=%s", order.ID, order.Side, order.Amount, order.Pair, order.Price, order.Total)

	l.emit()
	reply(cmd.Reply, order.ID, nil)
}

// heldFees 已挂买单在结算时将要扣除的手续费
func (l *Ledger) heldFees(acc *domain.Account, quote string) decimal.Decimal {
	sum := decimal.Zero
	for i := range acc.OpenOrders {
		o := &acc.OpenOrders[i]
		if o.Side != domain.SideBuy {
			continue
		}
		if _, q, err := domain.SplitPair(o.Pair, l.cfg.QuoteAssets); err == nil && q == quote {
			sum = sum.Add(o.Total.Mul(l.cfg.TakerFeeRate))
		}
	}
	return sum
}

// CancelOrder 取消开放订单并退回预留资金；订单不在开放列表中时返回 false
func (l *Ledger) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	ch := make(chan result[bool], 1)
	return call(ctx, l, &CancelOrderCommand{Context: ctx, OrderID: orderID, Reply: ch}, ch)
}

// handleCancelOrder 处理取消订单命令
func (l *Ledger) handleCancelOrder(cmd *CancelOrderCommand) {
	ctx := cmd.Context
	acc, err := l.currentAccount(ctx)
	if err != nil {
		reply(cmd.Reply, false, err)
		return
	}

	order, ok := acc.RemoveOpenOrder(cmd.OrderID)
	if !ok {
		reply(cmd.Reply, false, nil)
		return
	}
	base, quote, err := domain.SplitPair(order.Pair, l.cfg.QuoteAssets)
	if err != nil {
		reply(cmd.Reply, false, err)
		return
	}

	// 退回预留资金
	switch order.Side {
	case domain.SideBuy:
		acc.Credit(quote, order.Total)
	case domain.SideSell:
		acc.Credit(base, order.Amount)
	}
	now := l.now()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	acc.PrependOrderHistory(order)

	if err := l.saveAccount(ctx, acc); err != nil {
		ledgerLog.Errorf("取消订单持久化失败: id=%s err=%v", order.ID, err)
		reply(cmd.Reply, false, err)
		return
	}
	l.unschedule(order.ID)
	metrics.OrdersCancelled.Add(1)
	ledgerLog.Infof("取消订单: id=%s", order.ID)

	l.emit()
	reply(cmd.Reply, true, nil)
}

// handleSettleOrder 延迟结算；订单已不在开放列表中时直接返回（取消优先）
func (l *Ledger) handleSettleOrder(cmd *SettleOrderCommand) {
	if _, ok := l.pending[cmd.OrderID]; !ok {
		return
	}
	delete(l.pending, cmd.OrderID)
	metrics.PendingFills.Set(int64(len(l.pending)))

	ctx := l.runCtx
	acc, err := l.loadAccount(ctx, cmd.AccountID)
	if err != nil {
		ledgerLog.Errorf("结算加载账户失败: account=%s order=%s err=%v", cmd.AccountID, cmd.OrderID, err)
		return
	}
	i := acc.OpenOrderIndex(cmd.OrderID)
	if i < 0 {
		return
	}
	order := acc.OpenOrders[i]
	base, quote, err := domain.SplitPair(order.Pair, l.cfg.QuoteAssets)
	if err != nil {
		ledgerLog.Errorf("结算交易对无法识别: order=%s pair=%s", order.ID, order.Pair)
		return
	}

	fee := order.Total.Mul(l.cfg.TakerFeeRate)
	switch order.Side {
	case domain.SideBuy:
		if acc.Balance(quote).LessThan(fee) {
			ledgerLog.Errorf("结算手续费不足: order=%s fee=%s balance=%s", order.ID, fee, acc.Balance(quote))
			return
		}
		acc.Credit(base, order.Amount)
		_ = acc.Debit(quote, fee)
	case domain.SideSell:
		acc.Credit(quote, order.Total.Sub(fee))
	}

	now := l.now()
	order.Fee = fee
	order.Status = domain.OrderStatusFilled
	order.Filled = order.Amount
	order.Remaining = decimal.Zero
	order.ExecutedAt = &now

	acc.RemoveOpenOrder(order.ID)
	acc.PrependOrderHistory(order)
	acc.PrependTrade(domain.NewTradeFromOrder(domain.NewTradeID(), &order, quote, now))

	if err := l.saveAccount(ctx, acc); err != nil {
		// 不重试：订单保持 open，资金仍处于预留状态
		ledgerLog.Errorf("结算持久化失败: order=%s err=%v", order.ID, err)
		return
	}
	metrics.OrdersFilled.Add(1)
	ledgerLog.Infof("成交: id=%s %s %s %s @ %s fee=%s %s", order.ID, order.Side, order.Amount, order.Pair, order.Price, fee, quote)

	l.emit()
}
