package shutdown

import (
	"context"
	"io"
	"sync"

	"github.com/betbot/paperex/pkg/logger"
)

// Handler 关闭处理函数，完成后必须返回
type Handler func(ctx context.Context)

// Manager 优雅关闭管理器
//
// 分两个阶段：先并发执行 OnShutdown 注册的回调（停止接收请求、停止后台循环），
// 全部完成或超时后，再按注册的逆序关闭 OnClose 注册的资源（存储等）。
type Manager struct {
	mu        sync.Mutex
	callbacks []namedHandler
	closers   []namedCloser
}

type namedHandler struct {
	name string
	fn   Handler
}

type namedCloser struct {
	name string
	c    io.Closer
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册第一阶段回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// OnClose 注册第二阶段需要关闭的资源
func (m *Manager) OnClose(name string, c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, namedCloser{name: name, c: c})
}

// Shutdown 执行全部关闭逻辑（阻塞调用），ctx 应该带超时
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	closers := m.closers
	m.mu.Unlock()

	logger.Infof("开始优雅关闭，共 %d 个回调、%d 个资源", len(callbacks), len(closers))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h namedHandler) {
			defer wg.Done()
			h.fn(ctx)
			logger.Debugf("关闭回调完成: %s", h.name)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("所有关闭回调已完成")
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].c.Close(); err != nil {
			logger.Errorf("关闭 %s 失败: %v", closers[i].name, err)
			continue
		}
		logger.Debugf("已关闭: %s", closers[i].name)
	}
}
