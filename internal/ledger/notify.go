package ledger

import "github.com/betbot/paperex/pkg/sigchan"

// EventBalanceUpdated 唯一的变更事件名，不携带数据，观察者收到后应重新查询
const EventBalanceUpdated = "balanceUpdated"

// Subscription 变更订阅；多次变化可能合并为一次通知
type Subscription struct {
	ch     *sigchan.Chan
	cancel func()
}

// C 变更信号
func (s *Subscription) C() <-chan struct{} { return s.ch.C() }

// Close 取消订阅（可重复调用）
func (s *Subscription) Close() { s.cancel() }

// Subscribe 订阅账户变更
func (l *Ledger) Subscribe() *Subscription {
	ch, cancel := l.events.Subscribe()
	return &Subscription{ch: ch, cancel: cancel}
}

func (l *Ledger) emit() {
	l.events.Emit()
}
