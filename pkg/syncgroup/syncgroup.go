package syncgroup

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/betbot/paperex/pkg/logger"
)

// SyncGroup 管理一组长期运行的后台循环（账本、行情流、HTTP 服务等）
// 自动管理 Add() 和 Done()；某个循环 panic 时记录日志，不影响其余循环
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{running: make(map[string]struct{})}
}

// Go 以 name 启动一个循环，fn 应在 ctx 结束时返回
func (g *SyncGroup) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.running[name] = struct{}{}
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("后台循环 %s panic: %v\n%s", name, r, debug.Stack())
			}
			g.mu.Lock()
			delete(g.running, name)
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn(ctx)
	}()
}

// Running 仍在运行的循环名
func (g *SyncGroup) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.running))
	for name := range g.running {
		out = append(out, name)
	}
	return out
}

// Wait 等待所有循环返回
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitContext 等待所有循环返回或 ctx 结束，返回是否全部返回
func (g *SyncGroup) WaitContext(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
