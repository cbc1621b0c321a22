package scanner

import (
	"math"
	"sync"
	"time"

	"github.com/betbot/gabagool/internal/book"
	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/indicators"
	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/pkg/cache"
	"github.com/betbot/gabagool/pkg/logger"
)

// Config 扫描评分配置
type Config struct {
	PairCostCeiling  domain.Price  // pair cost 上限（默认 0.995），超过直接短路
	VolumeFloor      float64       // 市场成交量下限（USDC）
	MidHistorySize   int           // mid price 环形缓冲容量（默认 100）
	RSIPeriod        int           // RSI 周期（默认 14）
	OBIDepth         int           // OBI 取最优档数（默认 5）
	IndicatorTTL     time.Duration // 指标缓存 TTL（默认 5s）
	WeightPairCost   float64       // pair cost 改善权重
	WeightInventory  float64       // 库存均衡权重（惩罚既有倾斜）
	WeightPrice      float64       // 价格有利度权重
	WeightMomentum   float64       // 动量/OBI 权重
	SkewPenaltyUnits float64       // 库存倾斜归一化基数（shares）
}

// Defaults 填充缺省配置
func (c *Config) Defaults() {
	if c.PairCostCeiling.Pips == 0 {
		c.PairCostCeiling = domain.PriceFromDecimal(0.995)
	}
	if c.MidHistorySize <= 0 {
		c.MidHistorySize = 100
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.OBIDepth <= 0 {
		c.OBIDepth = 5
	}
	if c.IndicatorTTL <= 0 {
		c.IndicatorTTL = 5 * time.Second
	}
	if c.WeightPairCost <= 0 {
		c.WeightPairCost = 40
	}
	if c.WeightInventory <= 0 {
		c.WeightInventory = 20
	}
	if c.WeightPrice <= 0 {
		c.WeightPrice = 20
	}
	if c.WeightMomentum <= 0 {
		c.WeightMomentum = 20
	}
	if c.SkewPenaltyUnits <= 0 {
		c.SkewPenaltyUnits = 50
	}
}

// Opportunity 已评分的可交易状态（策略引擎的输入）
type Opportunity struct {
	Market    *domain.Market
	Score     int          // 0-100
	PairCost  domain.Price // bestAsk(YES) + bestAsk(NO)
	YesAsk    book.Level
	NoAsk     book.Level
	YesRSI    float64 // YES mid 的 RSI（样本不足时为 NaN）
	YesOBI    float64 // YES 订单簿失衡度
	Timestamp time.Time
}

// indicatorSnapshot 短 TTL 缓存的昂贵指标
type indicatorSnapshot struct {
	rsi float64
	obi float64
}

// Scanner 机会扫描器：由订单簿 immediate-analysis 信号驱动，
// 先过滤（pair cost / volume），再对存活市场打 0-100 分。
type Scanner struct {
	cfg    Config
	mirror *book.Mirror
	inv    ports.InventoryViewer

	mu   sync.Mutex
	mids map[string]*indicators.Ring // marketSlug -> YES mid 序列

	indCache *cache.InMemoryCache[string, indicatorSnapshot]
}

// New 创建扫描器
func New(cfg Config, mirror *book.Mirror, inv ports.InventoryViewer) *Scanner {
	cfg.Defaults()
	return &Scanner{
		cfg:      cfg,
		mirror:   mirror,
		inv:      inv,
		mids:     make(map[string]*indicators.Ring),
		indCache: cache.NewInMemoryCache[string, indicatorSnapshot](cfg.IndicatorTTL),
	}
}

// Observe 记录一次市场观察（每次信号触发时调用），推进 mid 序列。
func (s *Scanner) Observe(market *domain.Market) {
	mid, ok := s.mirror.Mid(market.YesTokenID)
	if !ok {
		return
	}
	s.mu.Lock()
	ring, exists := s.mids[market.Slug]
	if !exists {
		ring = indicators.NewRing(s.cfg.MidHistorySize)
		s.mids[market.Slug] = ring
	}
	ring.Push(mid.ToDecimal())
	s.mu.Unlock()
}

// Scan 对单个市场过滤并评分；不可交易返回 (nil, false)。
func (s *Scanner) Scan(market *domain.Market) (*Opportunity, bool) {
	if market == nil || market.Resolved {
		return nil, false
	}

	// 前置过滤：不满足的市场直接短路，不做任何指标计算
	if market.Volume < s.cfg.VolumeFloor {
		return nil, false
	}
	pairCost, ok := s.mirror.PairCost(market.Slug)
	if !ok {
		return nil, false
	}
	if pairCost.GreaterThan(s.cfg.PairCostCeiling) {
		return nil, false
	}

	yesAsk, ok1 := s.mirror.BestAsk(market.YesTokenID)
	noAsk, ok2 := s.mirror.BestAsk(market.NoTokenID)
	if !ok1 || !ok2 {
		return nil, false
	}

	ind := s.indicatorsFor(market)

	opp := &Opportunity{
		Market:    market,
		PairCost:  pairCost,
		YesAsk:    yesAsk,
		NoAsk:     noAsk,
		YesRSI:    ind.rsi,
		YesOBI:    ind.obi,
		Timestamp: time.Now(),
	}
	opp.Score = s.score(opp)

	logger.Debugf("[scanner] %s pairCost=%.4f score=%d", market.Slug, pairCost.ToDecimal(), opp.Score)
	return opp, true
}

// indicatorsFor 读取或重算昂贵指标（5s TTL 缓存，过期才重算）
func (s *Scanner) indicatorsFor(market *domain.Market) indicatorSnapshot {
	if snap, ok := s.indCache.Get(market.Slug); ok {
		return snap
	}

	snap := indicatorSnapshot{rsi: math.NaN(), obi: 0.5}

	s.mu.Lock()
	ring := s.mids[market.Slug]
	var values []float64
	if ring != nil {
		values = ring.Values()
	}
	s.mu.Unlock()

	if rsi, ok := indicators.RSI(values, s.cfg.RSIPeriod); ok {
		snap.rsi = rsi
	}

	bids := s.mirror.TopLevels(market.YesTokenID, domain.BookSideBid, s.cfg.OBIDepth)
	asks := s.mirror.TopLevels(market.YesTokenID, domain.BookSideAsk, s.cfg.OBIDepth)
	bidSizes := make([]float64, 0, len(bids))
	askSizes := make([]float64, 0, len(asks))
	for _, l := range bids {
		bidSizes = append(bidSizes, l.Size)
	}
	for _, l := range asks {
		askSizes = append(askSizes, l.Size)
	}
	if obi, ok := indicators.OBI(bidSizes, askSizes); ok {
		snap.obi = obi
	}

	s.indCache.Set(market.Slug, snap, 0)
	return snap
}

// score 加权评分，输出 0-100 整数
func (s *Scanner) score(opp *Opportunity) int {
	// pair cost 改善：低于 1.00 的距离，5 cents 封顶记满分
	improvement := 1.0 - opp.PairCost.ToDecimal()
	if improvement < 0 {
		improvement = 0
	}
	pairTerm := math.Min(improvement/0.05, 1.0)

	// 库存均衡：既有倾斜越大得分越低
	skew := 0.0
	if s.inv != nil {
		skew = math.Abs(s.inv.Inventory(opp.Market.Slug).Skew())
	}
	invTerm := 1.0 - math.Min(skew/s.cfg.SkewPenaltyUnits, 1.0)

	// 价格有利度：两侧 ask 都远离 0.5 极端区间时更好成交
	yes := opp.YesAsk.Price.ToDecimal()
	priceTerm := 1.0 - math.Abs(yes-0.5)*2*0.5

	// 动量/OBI：买压占优加分；RSI 超卖（<30）轻微加分
	momTerm := opp.YesOBI
	if !math.IsNaN(opp.YesRSI) && opp.YesRSI < 30 {
		momTerm = math.Min(momTerm+0.2, 1.0)
	}

	total := pairTerm*s.cfg.WeightPairCost +
		invTerm*s.cfg.WeightInventory +
		priceTerm*s.cfg.WeightPrice +
		momTerm*s.cfg.WeightMomentum

	maxTotal := s.cfg.WeightPairCost + s.cfg.WeightInventory + s.cfg.WeightPrice + s.cfg.WeightMomentum
	score := int(math.Round(total / maxTotal * 100))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
