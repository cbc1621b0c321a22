package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/pkg/logger"
)

// paperOps 纸交易交易所：不发真实请求，订单全部立即确认。
// 用于 dry run 验证策略/执行链路。
type paperOps struct {
	seq atomic.Int64
}

func newPaperOps() *paperOps {
	return &paperOps{}
}

func (p *paperOps) SubmitOrder(_ context.Context, order *domain.Order, _ *domain.Signature) (*domain.Order, error) {
	order.OrderID = fmt.Sprintf("paper-%d", p.seq.Add(1))
	order.Status = domain.OrderStatusAcknowledged
	logger.Infof("[paper] 模拟下单 %s %s %s %.2f @ %.4f",
		order.MarketSlug, order.TokenType, order.Side, order.Size, order.Price.ToDecimal())
	return order, nil
}

func (p *paperOps) CancelOrder(_ context.Context, orderID string) error {
	logger.Infof("[paper] 模拟撤单 %s", orderID)
	return nil
}

func (p *paperOps) Redeem(_ context.Context, conditionID string) error {
	logger.Infof("[paper] 模拟赎回 condition=%s", conditionID)
	return nil
}

func (p *paperOps) Ping(context.Context) error {
	return nil
}
