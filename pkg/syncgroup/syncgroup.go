// Package syncgroup 把 goroutine 的启动与 WaitGroup 记账绑定在一起，
// Add/Done 不再需要成对手写。
package syncgroup

import "sync"

// SyncGroup 收集一组任务函数并统一启动、统一等待。
// 用法：Add 若干任务，Run 一次性启动，Wait 等待全部退出。
// Run 之后再 Add 的任务立即启动。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func()
	started bool
}

// NewSyncGroup 创建空组
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 注册任务函数。组未启动时入队，已启动时直接拉起 goroutine。
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}

	g.mu.Lock()
	if !g.started {
		g.pending = append(g.pending, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.spawn(fn)
}

// Run 启动所有排队任务。重复调用只会启动新排队的部分。
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.pending
	g.pending = nil
	g.started = true
	g.mu.Unlock()

	for _, fn := range fns {
		g.spawn(fn)
	}
}

// Wait 阻塞到所有已启动任务退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

func (g *SyncGroup) spawn(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}
