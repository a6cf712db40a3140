package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/metrics"
	"github.com/betbot/paperex/internal/priceoracle"
	"github.com/betbot/paperex/internal/session"
	"github.com/betbot/paperex/pkg/persistence"
	"github.com/betbot/paperex/pkg/sigchan"
)

var ledgerLog = logrus.WithField("component", "ledger")

// ErrStopped 引擎已停止
var ErrStopped = errors.New("ledger stopped")

// Sessions 会话能力（由 session.Manager 实现）
type Sessions interface {
	CreateSession(ctx context.Context, cred session.Credential) (string, error)
	CurrentAccountID(ctx context.Context) (string, error)
	EndSession(ctx context.Context) error
}

// PriceSource 价格来源（由 priceoracle.Oracle 实现）
type PriceSource interface {
	GetPrice(ctx context.Context, pair string) (priceoracle.Quote, error)
}

// Config 账本配置
type Config struct {
	QuoteAssets     []string
	TakerFeeRate    decimal.Decimal
	SettleDelay     time.Duration
	InitialBalances map[string]decimal.Decimal
}

// Option 可选项
type Option func(*Ledger)

// WithScheduler 替换延迟任务调度（测试用手动调度）
func WithScheduler(s Scheduler) Option {
	return func(l *Ledger) { l.scheduler = s }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger 订单生命周期与余额结算（Actor 模型）
//
// 所有操作都在 Run 的单一 goroutine 中顺序执行，彼此之间原子；
// 延迟结算以 SettleOrderCommand 的形式进入同一循环。
// 每个操作都是对账户快照的读-改-写，并以一次 Set 持久化。
type Ledger struct {
	// 命令通道（唯一入口）
	cmdChan chan command
	stopped chan struct{}

	store     persistence.Store
	sessions  Sessions
	prices    PriceSource
	cfg       Config
	scheduler Scheduler
	now       func() time.Time
	events    *sigchan.Broadcaster

	// 以下状态只在主循环中访问，无锁
	pending map[string]pendingFill // orderID -> 等待结算
	runCtx  context.Context
}

// New 创建账本
func New(store persistence.Store, sessions Sessions, prices PriceSource, cfg Config, opts ...Option) *Ledger {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if len(cfg.QuoteAssets) == 0 {
		cfg.QuoteAssets = []string{"EUR", "USDT"}
	}
	l := &Ledger{
		cmdChan:   make(chan command, 256),
		stopped:   make(chan struct{}),
		store:     store,
		sessions:  sessions,
		prices:    prices,
		cfg:       cfg,
		scheduler: realScheduler{},
		now:       time.Now,
		events:    sigchan.NewBroadcaster(),
		pending:   make(map[string]pendingFill),
		runCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run 启动主循环（必须在独立 goroutine 中运行），ctx 结束时返回
func (l *Ledger) Run(ctx context.Context) {
	l.runCtx = ctx
	defer close(l.stopped)
	defer l.stopAllPending()

	ledgerLog.Info("Ledger 启动")
	if id, err := l.sessions.CurrentAccountID(ctx); err == nil {
		l.resumePending(ctx, id)
	}
	for {
		select {
		case cmd := <-l.cmdChan:
			l.handleCommand(cmd)
		case <-ctx.Done():
			ledgerLog.Info("Ledger 停止")
			return
		}
	}
}

// handleCommand 处理命令（顺序执行，无锁）
func (l *Ledger) handleCommand(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EnginePanics.Add(1)
			ledgerLog.Errorf("处理命令时发生 panic: %v, 命令类型: %s", r, cmd.CommandType())
			cmd.fail(fmt.Errorf("ledger: panic in %s: %v", cmd.CommandType(), r))
		}
	}()

	switch c := cmd.(type) {
	case *LoginCommand:
		l.handleLogin(c)
	case *LogoutCommand:
		l.handleLogout(c)
	case *PlaceOrderCommand:
		l.handlePlaceOrder(c)
	case *CancelOrderCommand:
		l.handleCancelOrder(c)
	case *SettleOrderCommand:
		l.handleSettleOrder(c)
	case *ResetAccountCommand:
		l.handleResetAccount(c)
	case *DepositCommand:
		l.handleDeposit(c)
	case *UpdateWatchlistCommand:
		l.handleUpdateWatchlist(c)
	case *QueryAccountCommand:
		l.handleQueryAccount(c)
	default:
		ledgerLog.Errorf("未知命令类型: %s", cmd.CommandType())
	}
}

// call 提交命令并等待回复
func call[T any](ctx context.Context, l *Ledger, cmd command, ch chan result[T]) (T, error) {
	var zero T
	select {
	case l.cmdChan <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.stopped:
		return zero, ErrStopped
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.stopped:
		return zero, ErrStopped
	}
}

// enqueue 无需回复的内部命令（延迟结算），引擎停止后丢弃
func (l *Ledger) enqueue(cmd command) {
	select {
	case l.cmdChan <- cmd:
	case <-l.stopped:
	}
}

// currentAccount 解析当前会话并加载账户
func (l *Ledger) currentAccount(ctx context.Context) (*domain.Account, error) {
	id, err := l.sessions.CurrentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := l.loadAccount(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	return acc, err
}

func (l *Ledger) loadAccount(ctx context.Context, id string) (*domain.Account, error) {
	var acc domain.Account
	key := domain.AccountKey(id)
	err := l.store.Get(ctx, key, &acc)
	if errors.Is(err, persistence.ErrNotExists) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		metrics.StorageErrors.Add(1)
		return nil, domain.NewStorageError("get", key, err)
	}
	acc.Normalize()
	return &acc, nil
}

// saveAccount 一次写入账户的全部变更
func (l *Ledger) saveAccount(ctx context.Context, acc *domain.Account) error {
	key := domain.AccountKey(acc.ID)
	if err := l.store.Set(ctx, key, acc); err != nil {
		metrics.StorageErrors.Add(1)
		return domain.NewStorageError("set", key, err)
	}
	return nil
}

func (l *Ledger) schedule(accountID, orderID string) {
	t := l.scheduler.AfterFunc(l.cfg.SettleDelay, func() {
		l.enqueue(&SettleOrderCommand{AccountID: accountID, OrderID: orderID})
	})
	l.pending[orderID] = pendingFill{accountID: accountID, timer: t}
	metrics.PendingFills.Set(int64(len(l.pending)))
}

func (l *Ledger) unschedule(orderID string) {
	if p, ok := l.pending[orderID]; ok {
		p.timer.Stop()
		delete(l.pending, orderID)
		metrics.PendingFills.Set(int64(len(l.pending)))
	}
}

func (l *Ledger) stopAllPending() {
	for id := range l.pending {
		l.unschedule(id)
	}
}

