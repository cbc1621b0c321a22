package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gabagool/internal/book"
	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/execution"
	"github.com/betbot/gabagool/internal/fills"
	"github.com/betbot/gabagool/internal/infrastructure/exchange"
	"github.com/betbot/gabagool/internal/infrastructure/feed"
	"github.com/betbot/gabagool/internal/infrastructure/signer"
	"github.com/betbot/gabagool/internal/metrics"
	"github.com/betbot/gabagool/internal/persistence"
	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/internal/queue"
	"github.com/betbot/gabagool/internal/redeem"
	"github.com/betbot/gabagool/internal/scanner"
	"github.com/betbot/gabagool/internal/sizing"
	"github.com/betbot/gabagool/internal/statusapi"
	"github.com/betbot/gabagool/internal/strategy"
	"github.com/betbot/gabagool/pkg/config"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/syncgroup"
	"github.com/pkg/errors"
)

// Engine 组装根：事件驱动主循环。
// 行情信号 -> 扫描评分 -> 策略评估 -> 意图入队 -> 执行器消费。
// 参数热更新只改策略内部状态，主循环无锁穿行。
type Engine struct {
	cfg  *config.Config
	mode strategy.Mode

	store    *persistence.Service
	mirror   *book.Mirror
	scanner  *scanner.Scanner
	registry *strategy.Registry
	sizer    *sizing.Sizer
	queue    *queue.Queue
	exec     *execution.Executor
	fills    *fills.Manager
	redeemer *redeem.Loop
	market   *feed.MarketFeed
	userFeed *feed.UserFeed
	status   *statusapi.Server

	sg     *syncgroup.SyncGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New 按配置组装全部组件（不启动）
func New(cfg *config.Config) (*Engine, error) {
	store, err := persistence.Open(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "打开持久化存储失败")
	}

	e := &Engine{
		cfg:    cfg,
		mode:   strategy.Mode(cfg.StrategyMode),
		store:  store,
		mirror: book.NewMirror(),
		sg:     syncgroup.NewSyncGroup(),
	}

	// 断路器熔断事件落盘（badger 流水）+ 计数
	cb := execution.NewCircuitBreaker(execution.BreakerConfig{
		FailureThreshold: int64(cfg.Execution.BreakerThreshold),
		Cooldown:         time.Duration(cfg.Execution.BreakerCooldownS) * time.Second,
	})
	tripStore := store.NewStore("execution", "breaker", "trips")
	cb.OnTrip(func(reason string, failures int64) {
		metrics.BreakerTrips.Add(1)
		if err := tripStore.Append(&persistence.BreakerTrip{
			Reason:   reason,
			Failures: failures,
			At:       time.Now(),
		}); err != nil {
			logger.Warnf("[engine] 熔断流水落盘失败: %v", err)
		}
	})

	var ops ports.ExchangeOps
	if cfg.DryRun {
		ops = newPaperOps()
	} else {
		ops = exchange.NewClient(exchange.Config{
			Host:    cfg.Exchange.Host,
			APIKey:  cfg.Exchange.APIKey,
			Timeout: cfg.ExchangeTimeout(),
		})
	}

	e.queue = queue.New(cfg.Execution.QueueCapacity)

	sign := signer.NewLocal(cfg.Exchange.APISecret, 30*time.Second)
	e.exec = execution.NewExecutor(execution.Config{
		Parallelism:  cfg.Execution.Parallelism,
		CallTimeout:  time.Duration(cfg.Execution.CallTimeoutMS) * time.Millisecond,
		PresignTopN:  cfg.Execution.PresignTopN,
		WarmInterval: time.Duration(cfg.Execution.WarmIntervalS) * time.Second,
	}, e.queue, ops, cb, sign)

	e.fills = fills.NewManager(fills.Config{
		SkewThreshold:    cfg.Fills.SkewThreshold,
		Policy:           fills.LiquidationPolicy(cfg.Fills.LiquidationPolicy),
		MarketOffsetPips: cfg.Fills.MarketOffsetPips,
	}, e.mirror, e.queue)
	e.exec.SetOrderSink(e.fills)

	e.sizer = sizing.NewSizer(sizing.Config{
		Fraction:  cfg.Sizing.Fraction,
		Lookback:  cfg.Sizing.Lookback,
		MinTrades: cfg.Sizing.MinTrades,
		MinSize:   decimal.NewFromFloat(cfg.Sizing.MinSize),
		MaxSize:   decimal.NewFromFloat(cfg.Sizing.MaxSize),
	}, store.NewStore("sizing", "kelly", "state"))

	e.scanner = scanner.New(scanner.Config{
		PairCostCeiling: domain.PriceFromDecimal(cfg.Scanner.PairCostCeiling),
		VolumeFloor:     cfg.Scanner.VolumeFloor,
	}, e.mirror, e.fills)

	e.registry = strategy.NewRegistry()
	if cfg.Gabagool.Enabled {
		gab := strategy.NewGabagool(strategy.GabagoolConfig{
			MarginPips: cfg.Gabagool.MarginPips,
			Capital:    decimal.NewFromFloat(cfg.Gabagool.Capital),
			MaxSkew:    cfg.Gabagool.MaxSkew,
		}, e.sizer)
		if err := e.registry.Register(gab); err != nil {
			return nil, err
		}
	}
	if cfg.Momentum.Enabled {
		mom := strategy.NewMomentum(strategy.MomentumConfig{
			WindowSeconds:  cfg.Momentum.WindowSeconds,
			MinPayoutRatio: cfg.Momentum.MinPayoutRatio,
			AsymmetryCap:   cfg.Momentum.AsymmetryCap,
			MaxNakedShares: cfg.Momentum.MaxNakedShares,
			Capital:        decimal.NewFromFloat(cfg.Momentum.Capital),
		}, e.sizer)
		if err := e.registry.Register(mom); err != nil {
			return nil, err
		}
	}

	e.market = feed.NewMarketFeed(feed.Config{URL: cfg.Exchange.MarketWS}, e.mirror)
	e.userFeed = feed.NewUserFeed(cfg.Exchange.UserWS, cfg.Exchange.APIKey, e.fills)

	if cfg.Redeem.Enabled {
		e.redeemer = redeem.NewLoop(redeem.Config{
			Interval: time.Duration(cfg.Redeem.IntervalS) * time.Second,
		}, e.mirror, e.fills, e.exec)
	}

	e.status = statusapi.New(statusapi.Config{Addr: cfg.StatusAddr}, e)
	return e, nil
}

// Sizer 暴露给结算回路记录盈亏样本
func (e *Engine) Sizer() *sizing.Sizer {
	return e.sizer
}

// Start 启动全部组件（非阻塞）
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)

	if !e.cfg.DryRun {
		if err := e.market.Start(ctx); err != nil {
			return err
		}
		if e.cfg.Exchange.UserWS != "" {
			if err := e.userFeed.Start(ctx); err != nil {
				return err
			}
		}
	}

	e.exec.Start(ctx)

	if e.redeemer != nil {
		e.sg.Add(func() { e.redeemer.Run(ctx) })
	}
	e.sg.Run()

	e.status.Start()
	if e.cfg.DebugAddr != "" {
		if _, err := metrics.StartAsync(ctx, e.cfg.DebugAddr); err != nil {
			logger.Warnf("[engine] debug 服务启动失败: %v", err)
		}
	}

	logger.Infof("[engine] 启动完成 (strategies=%v dry_run=%v)", e.registry.List(), e.cfg.DryRun)
	return nil
}

// AddMarket 接入一个市场：注册镜像、订阅行情、启动该市场的评估循环。
func (e *Engine) AddMarket(ctx context.Context, market *domain.Market) error {
	if err := e.market.Subscribe(market); err != nil {
		return err
	}
	sig, ok := e.mirror.Signal(market.Slug)
	if !ok {
		return errors.Errorf("市场未注册: %s", market.Slug)
	}

	go e.marketLoop(ctx, market, sig.C())
	logger.Infof("[engine] 市场接入: %s (deadline=%s)", market.Slug, market.Deadline.Format(time.RFC3339))
	return nil
}

// marketLoop 单市场评估循环：行情信号驱动，辅以兜底节拍。
// 评估在信号合并后的最新簿上进行，绝不评估陈旧状态。
func (e *Engine) marketLoop(ctx context.Context, market *domain.Market, sig <-chan struct{}) {
	fallback := time.NewTicker(time.Duration(e.cfg.Scanner.ScanIntervalMS) * time.Millisecond)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
		case <-fallback.C:
		}

		if market.Resolved {
			return
		}
		e.evaluate(ctx, market)
	}
}

// evaluate 一轮评估：Observe 推进指标，Scan 评分，激活策略逐个出意图。
// 入队前先作废本市场两腿的存量意图：簿面已变，旧价不再可信。
// urgent 平仓意图由队列自行保留。
func (e *Engine) evaluate(ctx context.Context, market *domain.Market) {
	e.scanner.Observe(market)

	stale := e.queue.Invalidate(market.Slug, market.YesTokenID) +
		e.queue.Invalidate(market.Slug, market.NoTokenID)
	if stale > 0 {
		metrics.IntentsSuperseded.Add(int64(stale))
	}

	opp, ok := e.scanner.Scan(market)
	if !ok {
		return
	}
	metrics.OpportunitiesHit.Add(1)

	inv := e.fills.Inventory(market.Slug)
	var warm []*domain.OrderIntent

	for _, strat := range e.registry.Active(e.mode) {
		intents, err := strat.Evaluate(ctx, opp, inv)
		if err != nil {
			logger.Warnf("[engine] 策略 %s 评估失败 market=%s: %v", strat.Name(), market.Slug, err)
			continue
		}
		for _, intent := range intents {
			if err := e.queue.Enqueue(intent); err != nil {
				metrics.IntentsDropped.Add(1)
				logger.Debugf("[engine] 意图入队失败 market=%s: %v", market.Slug, err)
				continue
			}
			metrics.IntentsEnqueued.Add(1)
			warm = append(warm, intent)
		}
	}

	// 高分候选提前签名，缩短提交临界路径
	if len(warm) > 0 {
		e.exec.Presigner().Warm(ctx, warm)
	}
}

// Status 运行快照（状态 API 数据源）
func (e *Engine) Status() map[string]interface{} {
	markets := e.mirror.Markets()
	marketStatus := make([]map[string]interface{}, 0, len(markets))
	for _, m := range markets {
		entry := map[string]interface{}{
			"slug":     m.Slug,
			"resolved": m.Resolved,
		}
		if pc, ok := e.mirror.PairCost(m.Slug); ok {
			entry["pair_cost"] = pc.ToDecimal()
		}
		inv := e.fills.Inventory(m.Slug)
		entry["skew"] = inv.Skew()
		marketStatus = append(marketStatus, entry)
	}

	return map[string]interface{}{
		"markets":    marketStatus,
		"queue_len":  e.queue.Len(),
		"breaker":    e.exec.Breaker().State().String(),
		"strategies": e.registry.List(),
		"dry_run":    e.cfg.DryRun,
	}
}

// SetStrategyParams 原子更新策略参数（statusapi 入口）。
// 策略内部持锁替换，主循环在下一轮评估看到新参数。
func (e *Engine) SetStrategyParams(strategyID string, params map[string]float64) error {
	strat, err := e.registry.Get(strategyID)
	if err != nil {
		return err
	}
	return strat.SetParams(params)
}

// Shutdown 停止主循环并释放资源
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.queue.Close()
	e.market.Close()
	e.userFeed.Close()

	if err := e.status.Shutdown(ctx); err != nil {
		logger.Warnf("[engine] 状态服务关闭失败: %v", err)
	}

	e.exec.Wait()
	e.sg.Wait()

	if err := e.store.Close(); err != nil {
		return errors.Wrap(err, "关闭持久化存储失败")
	}
	logger.Info("[engine] 已退出")
	return nil
}
