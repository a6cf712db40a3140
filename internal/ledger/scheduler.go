package ledger

import "time"

// Timer 可取消的延迟任务
type Timer interface {
	Stop() bool
}

// Scheduler 延迟任务调度
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// realScheduler 基于 time.AfterFunc
type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// pendingFill 等待结算的订单
type pendingFill struct {
	accountID string
	timer     Timer
}
