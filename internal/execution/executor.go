package execution

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/metrics"
	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/internal/queue"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/syncgroup"
)

// OrderSink 消费已确认订单（fills.Manager 注册后跟踪成交）
type OrderSink interface {
	RegisterOrder(order *domain.Order)
}

// Config 执行层配置
type Config struct {
	Parallelism  int           // 并发消费者数量，默认 3
	CallTimeout  time.Duration // 单次交易所调用超时，默认 5s
	InFlightTTL  time.Duration // in-flight 去重窗口，默认 10s
	Retry        RetryPolicy
	PresignTopN  int
	PresignTTL   time.Duration
	WarmInterval time.Duration
}

// Defaults 填充缺省配置
func (c *Config) Defaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.InFlightTTL <= 0 {
		c.InFlightTTL = 10 * time.Second
	}
	c.Retry.Defaults()
}

// Executor 把队列里的意图转成交易所调用。
// 每一次交易所调用（下单/撤单/赎回）都先过共享断路器，失败按错误分级重试。
type Executor struct {
	cfg Config

	q       *queue.Queue
	ops     ports.ExchangeOps
	cb      *CircuitBreaker
	presign *Presigner
	warmer  *ConnectionWarmer
	dedup   *InFlightDeduper
	sg      *syncgroup.SyncGroup

	mu   sync.Mutex
	sink OrderSink
}

// NewExecutor 创建执行器
func NewExecutor(cfg Config, q *queue.Queue, ops ports.ExchangeOps, cb *CircuitBreaker, signer ports.Signer) *Executor {
	cfg.Defaults()
	return &Executor{
		cfg:     cfg,
		q:       q,
		ops:     ops,
		cb:      cb,
		presign: NewPresigner(signer, cfg.PresignTopN, cfg.PresignTTL),
		warmer:  NewConnectionWarmer(ops, cfg.WarmInterval),
		dedup:   NewInFlightDeduper(cfg.InFlightTTL),
		sg:      syncgroup.NewSyncGroup(),
	}
}

// SetOrderSink 注册订单下游（fills 管理器）
func (e *Executor) SetOrderSink(sink OrderSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// Presigner 暴露给引擎做候选预热
func (e *Executor) Presigner() *Presigner {
	return e.presign
}

// Breaker 返回共享断路器（状态 API / 赎回循环查询用）
func (e *Executor) Breaker() *CircuitBreaker {
	return e.cb
}

// Start 启动消费者与连接保温（非阻塞）
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.cfg.Parallelism; i++ {
		e.sg.Add(func() {
			e.consumeLoop(ctx)
		})
	}
	e.sg.Add(func() {
		e.warmer.Run(ctx)
	})
	e.sg.Run()
	logger.Infof("[executor] 启动完成: consumers=%d", e.cfg.Parallelism)
}

// Wait 等待所有消费者退出（shutdown 收尾用）
func (e *Executor) Wait() {
	e.sg.Wait()
}

func (e *Executor) consumeLoop(ctx context.Context) {
	for {
		intent, err := e.q.Dequeue(ctx)
		if err != nil {
			return
		}
		e.process(ctx, intent)
	}
}

// process 执行单个意图；Gabagool 双腿意图在这里取齐并发下单。
func (e *Executor) process(ctx context.Context, intent *domain.OrderIntent) {
	if intent.Expired(time.Now()) {
		metrics.IntentsDropped.Add(1)
		return
	}

	fp := intent.Fingerprint()
	if err := e.dedup.TryAcquire(fp); err != nil {
		logger.Debugf("[executor] 意图去重丢弃 %s", fp)
		metrics.IntentsDropped.Add(1)
		return
	}
	defer e.dedup.Release(fp)

	if intent.PairID != "" {
		if sibling := e.q.TakePair(intent.PairID, intent.ID); sibling != nil {
			e.executePair(ctx, intent, sibling)
			return
		}
	}

	if _, err := e.executeOne(ctx, intent); err != nil {
		logger.Warnf("[executor] 意图执行失败 %s: %v", intent.ID, err)
	}
}

// executeOne 下单单腿：断路器前置检查 + 预签名 + 带退避重试。
func (e *Executor) executeOne(ctx context.Context, intent *domain.OrderIntent) (*domain.Order, error) {
	if err := e.cb.Allow(); err != nil {
		return nil, err
	}

	order := intent.ToOrder()
	sig := e.presign.Take(intent)

	err := Retry(ctx, "submit", e.cfg.Retry, e.cb, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		ack, err := e.ops.SubmitOrder(callCtx, order, sig)
		if err != nil {
			metrics.OrdersRetried.Add(1)
			return err
		}
		order = ack
		return nil
	})

	if err != nil {
		if IsRejected(err) {
			metrics.OrdersRejected.Add(1)
		}
		return nil, err
	}

	metrics.OrdersSubmitted.Add(1)
	e.registerOrder(order)
	logger.WithFields(map[string]interface{}{
		"market": order.MarketSlug,
		"token":  string(order.TokenType),
		"side":   string(order.Side),
		"price":  order.Price.ToDecimal(),
		"size":   order.Size,
	}).Infof("[executor] 订单已提交: %s", order.OrderID)
	return order, nil
}

// executePair 双腿并发下单；任一腿失败则撤掉另一腿，避免单边敞口。
func (e *Executor) executePair(ctx context.Context, a, b *domain.OrderIntent) {
	var wg sync.WaitGroup
	orders := make([]*domain.Order, 2)
	errs := make([]error, 2)

	legs := []*domain.OrderIntent{a, b}
	wg.Add(2)
	for i := range legs {
		i := i
		go func() {
			defer wg.Done()
			orders[i], errs[i] = e.executeOne(ctx, legs[i])
		}()
	}
	wg.Wait()

	for i := range legs {
		if errs[i] == nil {
			continue
		}
		other := orders[1-i]
		if other == nil || other.OrderID == "" {
			continue
		}
		logger.Warnf("[executor] 腿 %s 失败 (%v)，撤销另一腿 %s", legs[i].ID, errs[i], other.OrderID)
		if err := e.Cancel(ctx, other.OrderID); err != nil {
			logger.Errorf("[executor] 撤销对腿失败 %s: %v", other.OrderID, err)
		}
		return
	}
}

// Cancel 撤单（同样走断路器 + 重试路径）
func (e *Executor) Cancel(ctx context.Context, orderID string) error {
	if err := e.cb.Allow(); err != nil {
		return err
	}
	return Retry(ctx, "cancel", e.cfg.Retry, e.cb, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		return e.ops.CancelOrder(callCtx, orderID)
	})
}

// Redeem 结算赎回：赎回循环是 4.5 的调用方而不是独立执行路径，
// 交易侧熔断同样会挡住赎回（共享保险丝）。
func (e *Executor) Redeem(ctx context.Context, conditionID string) error {
	if err := e.cb.Allow(); err != nil {
		return err
	}
	err := Retry(ctx, "redeem", e.cfg.Retry, e.cb, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		return e.ops.Redeem(callCtx, conditionID)
	})
	if err == nil {
		metrics.RedeemsIssued.Add(1)
	}
	return err
}

func (e *Executor) registerOrder(order *domain.Order) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil && order != nil {
		sink.RegisterOrder(order)
	}
}
