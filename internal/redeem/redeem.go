package redeem

import (
	"context"
	"time"

	"github.com/betbot/gabagool/internal/book"
	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/execution"
	"github.com/betbot/gabagool/internal/fills"
	"github.com/betbot/gabagool/pkg/logger"
)

// Config 自动赎回配置
type Config struct {
	Interval time.Duration // 扫描周期，默认 60s
}

// Loop 自动赎回循环：独立节奏扫描已结算且持有获胜仓位的市场，
// 通过 Executor 的断路器路径发起赎回。交易侧熔断同样会挡住赎回。
type Loop struct {
	cfg    Config
	mirror *book.Mirror
	fills  *fills.Manager
	exec   *execution.Executor
}

// NewLoop 创建赎回循环
func NewLoop(cfg Config, mirror *book.Mirror, fm *fills.Manager, exec *execution.Executor) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Loop{cfg: cfg, mirror: mirror, fills: fm, exec: exec}
}

// Run 阻塞运行直到 ctx 取消；退出前完成当前一轮扫描。
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

// sweep 扫描一轮：已结算市场 + 获胜侧有持仓 → 赎回。
func (l *Loop) sweep(ctx context.Context) {
	for _, market := range l.mirror.Markets() {
		if !market.Resolved {
			continue
		}
		inv := l.fills.Inventory(market.Slug)
		winning := inv.Yes
		if market.Winner == domain.TokenTypeNo {
			winning = inv.No
		}
		if winning.Size <= 0 {
			continue
		}

		logger.Infof("[redeem] 赎回 %s: winner=%s size=%.2f", market.Slug, market.Winner, winning.Size)
		if err := l.exec.Redeem(ctx, market.ConditionID); err != nil {
			// 熔断中属预期情况，等下一轮；其余失败记错误
			if err == execution.ErrCircuitOpen {
				logger.Warnf("[redeem] 断路器打开，本轮跳过")
				return
			}
			logger.Errorf("[redeem] 赎回失败 %s: %v", market.Slug, err)
			continue
		}
		l.mirror.Unregister(market.Slug)
	}
}
