package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/metrics"
	"github.com/betbot/paperex/internal/session"
)

// DefaultHistoryLimit 历史查询默认条数
const DefaultHistoryLimit = 50

// Login 登录并恢复该账户开放订单的结算任务。
// 会话写入与账本写入在同一循环中串行，避免互相覆盖账户记录。
func (l *Ledger) Login(ctx context.Context, cred session.Credential) (string, error) {
	ch := make(chan result[string], 1)
	return call(ctx, l, &LoginCommand{Context: ctx, Credential: cred, Reply: ch}, ch)
}

func (l *Ledger) handleLogin(cmd *LoginCommand) {
	id, err := l.sessions.CreateSession(cmd.Context, cmd.Credential)
	if err != nil {
		reply(cmd.Reply, "", err)
		return
	}
	l.resumePending(cmd.Context, id)
	l.emit()
	reply(cmd.Reply, id, nil)
}

// Logout 结束会话（幂等）。已挂订单照常结算。
func (l *Ledger) Logout(ctx context.Context) error {
	ch := make(chan result[struct{}], 1)
	_, err := call(ctx, l, &LogoutCommand{Context: ctx, Reply: ch}, ch)
	return err
}

func (l *Ledger) handleLogout(cmd *LogoutCommand) {
	err := l.sessions.EndSession(cmd.Context)
	if err == nil {
		l.emit()
	}
	reply(cmd.Reply, struct{}{}, err)
}

// resumePending 为没有结算任务的开放订单重新安排结算（例如进程重启后）
func (l *Ledger) resumePending(ctx context.Context, accountID string) {
	acc, err := l.loadAccount(ctx, accountID)
	if err != nil {
		return
	}
	n := 0
	for _, o := range acc.OpenOrders {
		if _, ok := l.pending[o.ID]; ok {
			continue
		}
		l.schedule(acc.ID, o.ID)
		n++
	}
	if n > 0 {
		ledgerLog.Infof("恢复 %d 个待结算订单: account=%s", n, accountID)
	}
}

// ResetAccount 余额恢复为初始表，清空开放订单与成交记录
func (l *Ledger) ResetAccount(ctx context.Context) error {
	ch := make(chan result[struct{}], 1)
	_, err := call(ctx, l, &ResetAccountCommand{Context: ctx, Reply: ch}, ch)
	return err
}

func (l *Ledger) handleResetAccount(cmd *ResetAccountCommand) {
	ctx := cmd.Context
	acc, err := l.currentAccount(ctx)
	if err != nil {
		reply(cmd.Reply, struct{}{}, err)
		return
	}
	dropped := make([]string, 0, len(acc.OpenOrders))
	for _, o := range acc.OpenOrders {
		dropped = append(dropped, o.ID)
	}

	acc.Balances = domain.CloneBalances(l.cfg.InitialBalances)
	acc.OpenOrders = []domain.Order{}
	acc.TradeHistory = []domain.Trade{}

	if err := l.saveAccount(ctx, acc); err != nil {
		reply(cmd.Reply, struct{}{}, err)
		return
	}
	// 被丢弃订单的结算任务作废
	for _, id := range dropped {
		l.unschedule(id)
	}
	metrics.AccountResets.Add(1)
	ledgerLog.Infof("重置账户: account=%s dropped_orders=%d", acc.ID, len(dropped))

	l.emit()
	reply(cmd.Reply, struct{}{}, nil)
}

// Deposit 向当前账户充值模拟资金，返回充值后的余额
func (l *Ledger) Deposit(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return decimal.Zero, domain.InvalidInputf("asset is empty")
	}
	if !amount.IsPositive() {
		return decimal.Zero, domain.InvalidInputf("deposit amount must be positive, got %s", amount)
	}
	ch := make(chan result[decimal.Decimal], 1)
	return call(ctx, l, &DepositCommand{Context: ctx, Asset: asset, Amount: amount, Reply: ch}, ch)
}

func (l *Ledger) handleDeposit(cmd *DepositCommand) {
	ctx := cmd.Context
	acc, err := l.currentAccount(ctx)
	if err != nil {
		reply(cmd.Reply, decimal.Zero, err)
		return
	}
	acc.Credit(cmd.Asset, cmd.Amount)
	if err := l.saveAccount(ctx, acc); err != nil {
		reply(cmd.Reply, decimal.Zero, err)
		return
	}
	ledgerLog.Infof("充值: account=%s %s %s", acc.ID, cmd.Amount, cmd.Asset)
	l.emit()
	reply(cmd.Reply, acc.Balance(cmd.Asset), nil)
}

// AddToWatchlist 加入自选，已存在时返回 false
func (l *Ledger) AddToWatchlist(ctx context.Context, pair string) (bool, error) {
	pair = domain.NormalizePair(pair)
	if _, _, err := domain.SplitPair(pair, l.cfg.QuoteAssets); err != nil {
		return false, err
	}
	ch := make(chan result[bool], 1)
	return call(ctx, l, &UpdateWatchlistCommand{Context: ctx, Pair: pair, Reply: ch}, ch)
}

// RemoveFromWatchlist 移出自选，不存在时返回 false
func (l *Ledger) RemoveFromWatchlist(ctx context.Context, pair string) (bool, error) {
	ch := make(chan result[bool], 1)
	return call(ctx, l, &UpdateWatchlistCommand{Context: ctx, Pair: domain.NormalizePair(pair), Remove: true, Reply: ch}, ch)
}

func (l *Ledger) handleUpdateWatchlist(cmd *UpdateWatchlistCommand) {
	ctx := cmd.Context
	acc, err := l.currentAccount(ctx)
	if err != nil {
		reply(cmd.Reply, false, err)
		return
	}
	var changed bool
	if cmd.Remove {
		changed = acc.RemoveFromWatchlist(cmd.Pair)
	} else {
		changed = acc.AddToWatchlist(cmd.Pair)
	}
	if !changed {
		reply(cmd.Reply, false, nil)
		return
	}
	if err := l.saveAccount(ctx, acc); err != nil {
		reply(cmd.Reply, false, err)
		return
	}
	l.emit()
	reply(cmd.Reply, true, nil)
}

// Account 当前账户快照
func (l *Ledger) Account(ctx context.Context) (*domain.Account, error) {
	ch := make(chan result[*domain.Account], 1)
	return call(ctx, l, &QueryAccountCommand{Context: ctx, Reply: ch}, ch)
}

func (l *Ledger) handleQueryAccount(cmd *QueryAccountCommand) {
	acc, err := l.currentAccount(cmd.Context)
	if err != nil {
		reply(cmd.Reply, nil, err)
		return
	}
	reply(cmd.Reply, acc, nil)
}

// OpenOrders 当前开放订单（下单顺序）
func (l *Ledger) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	acc, err := l.Account(ctx)
	if err != nil {
		return nil, err
	}
	return acc.OpenOrders, nil
}

// TradeHistory 最近成交（最新在前），limit<=0 时取默认条数
func (l *Ledger) TradeHistory(ctx context.Context, limit int) ([]domain.Trade, error) {
	acc, err := l.Account(ctx)
	if err != nil {
		return nil, err
	}
	return acc.TradeHistory[:clampLimit(limit, len(acc.TradeHistory))], nil
}

// OrderHistory 最近终态订单（最新在前）
func (l *Ledger) OrderHistory(ctx context.Context, limit int) ([]domain.Order, error) {
	acc, err := l.Account(ctx)
	if err != nil {
		return nil, err
	}
	return acc.OrderHistory[:clampLimit(limit, len(acc.OrderHistory))], nil
}

func clampLimit(limit, n int) int {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > n {
		return n
	}
	return limit
}
