package sigchan

import "sync"

// Chan 是一个非阻塞的信号 channel
// 用于通知事件发生，但不传递数据
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
		// 如果 channel 已满，忽略（非阻塞）：多次变化合并为一次通知
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Broadcaster 一对多的信号分发：每个订阅者独立持有一个 Chan
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Chan
}

// NewBroadcaster 创建分发器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*Chan)}
}

// Subscribe 订阅信号，返回的 cancel 用于取消订阅（可重复调用）
func (b *Broadcaster) Subscribe() (*Chan, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := New(1)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Emit 向所有订阅者发送信号（非阻塞）
func (b *Broadcaster) Emit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch.Emit()
	}
}

// Len 当前订阅者数量
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
