package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/session"
)

// CommandType 命令类型
type CommandType string

const (
	CmdLogin           CommandType = "login"
	CmdLogout          CommandType = "logout"
	CmdPlaceOrder      CommandType = "place_order"
	CmdCancelOrder     CommandType = "cancel_order"
	CmdSettleOrder     CommandType = "settle_order" // 仅由延迟任务投递
	CmdResetAccount    CommandType = "reset_account"
	CmdDeposit         CommandType = "deposit"
	CmdUpdateWatchlist CommandType = "update_watchlist"
	CmdQueryAccount    CommandType = "query_account" // 查询（只读）
)

// command 引擎命令：在主循环中顺序执行
type command interface {
	CommandType() CommandType
	// fail 在执行 panic 时回复调用方，避免调用方一直等待
	fail(err error)
}

type result[T any] struct {
	val T
	err error
}

func reply[T any](ch chan result[T], val T, err error) {
	select {
	case ch <- result[T]{val: val, err: err}:
	default:
	}
}

// LoginCommand 登录命令
type LoginCommand struct {
	Context    context.Context
	Credential session.Credential
	Reply      chan result[string]
}

func (c *LoginCommand) CommandType() CommandType { return CmdLogin }
func (c *LoginCommand) fail(err error)           { reply(c.Reply, "", err) }

// LogoutCommand 登出命令
type LogoutCommand struct {
	Context context.Context
	Reply   chan result[struct{}]
}

func (c *LogoutCommand) CommandType() CommandType { return CmdLogout }
func (c *LogoutCommand) fail(err error)           { reply(c.Reply, struct{}{}, err) }

// PlaceOrderCommand 下单命令（价格已确定，市价单在提交前已询价）
type PlaceOrderCommand struct {
	Context context.Context
	Order   validatedOrder
	Reply   chan result[string]
}

func (c *PlaceOrderCommand) CommandType() CommandType { return CmdPlaceOrder }
func (c *PlaceOrderCommand) fail(err error)           { reply(c.Reply, "", err) }

// CancelOrderCommand 取消订单命令
type CancelOrderCommand struct {
	Context context.Context
	OrderID string
	Reply   chan result[bool]
}

func (c *CancelOrderCommand) CommandType() CommandType { return CmdCancelOrder }
func (c *CancelOrderCommand) fail(err error)           { reply(c.Reply, false, err) }

// SettleOrderCommand 结算命令：按订单所属账户执行，与当前会话无关
type SettleOrderCommand struct {
	AccountID string
	OrderID   string
}

func (c *SettleOrderCommand) CommandType() CommandType { return CmdSettleOrder }
func (c *SettleOrderCommand) fail(error)               {}

// ResetAccountCommand 重置账户命令
type ResetAccountCommand struct {
	Context context.Context
	Reply   chan result[struct{}]
}

func (c *ResetAccountCommand) CommandType() CommandType { return CmdResetAccount }
func (c *ResetAccountCommand) fail(err error)           { reply(c.Reply, struct{}{}, err) }

// DepositCommand 充值命令
type DepositCommand struct {
	Context context.Context
	Asset   string
	Amount  decimal.Decimal
	Reply   chan result[decimal.Decimal]
}

func (c *DepositCommand) CommandType() CommandType { return CmdDeposit }
func (c *DepositCommand) fail(err error)           { reply(c.Reply, decimal.Zero, err) }

// UpdateWatchlistCommand 自选增删命令
type UpdateWatchlistCommand struct {
	Context context.Context
	Pair    string
	Remove  bool
	Reply   chan result[bool]
}

func (c *UpdateWatchlistCommand) CommandType() CommandType { return CmdUpdateWatchlist }
func (c *UpdateWatchlistCommand) fail(err error)           { reply(c.Reply, false, err) }

// QueryAccountCommand 查询当前账户快照
type QueryAccountCommand struct {
	Context context.Context
	Reply   chan result[*domain.Account]
}

func (c *QueryAccountCommand) CommandType() CommandType { return CmdQueryAccount }
func (c *QueryAccountCommand) fail(err error)           { reply(c.Reply, nil, err) }
