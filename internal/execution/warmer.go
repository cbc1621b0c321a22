package execution

import (
	"context"
	"time"

	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/pkg/logger"
)

// ConnectionWarmer 连接保温：独立于交易活动，周期性 ping 传输层，
// 把连接建立延迟摊到关键路径之外。
type ConnectionWarmer struct {
	pinger   ports.Pinger
	interval time.Duration
}

// NewConnectionWarmer 创建连接保温任务
func NewConnectionWarmer(pinger ports.Pinger, interval time.Duration) *ConnectionWarmer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ConnectionWarmer{pinger: pinger, interval: interval}
}

// Run 阻塞运行直到 ctx 取消（放进 syncgroup 里跑）。
// ping 失败只记日志，不计入断路器：保温不是交易调用。
func (w *ConnectionWarmer) Run(ctx context.Context) {
	if w == nil || w.pinger == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := w.pinger.Ping(pingCtx); err != nil {
				logger.Debugf("[warmer] ping 失败: %v", err)
			}
			cancel()
		}
	}
}
