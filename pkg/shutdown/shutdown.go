// Package shutdown 收集关闭回调并在退出时并发执行，整体受超时约束。
package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/gabagool/pkg/logger"
)

// Handler 关闭回调。ctx 到期后回调应尽快放弃未完成的清理。
type Handler func(ctx context.Context)

// Manager 优雅关闭管理器
type Manager struct {
	mu       sync.Mutex
	handlers []Handler
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调，注册顺序不保证执行顺序
func (m *Manager) OnShutdown(h Handler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Shutdown 并发执行所有回调，阻塞到全部完成或 ctx 超时。
// 超时后直接返回，未完成的回调由进程退出收尾。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	handlers := m.handlers
	m.mu.Unlock()

	if len(handlers) == 0 {
		return
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(handlers))

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(ctx)
		}(h)
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
}
