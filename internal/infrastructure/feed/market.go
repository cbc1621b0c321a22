package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/betbot/gabagool/internal/book"
	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/metrics"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/syncgroup"
)

// Config 行情连接配置
type Config struct {
	URL            string        // WebSocket 地址
	ReconnectDelay time.Duration // 初始重连延迟（默认 5s）
	MaxReconnects  int           // 最大重连次数（默认 10）
}

// deltaMessage 单档增量消息
type deltaMessage struct {
	Type    string  `json:"type"` // "delta" | "snapshot"
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"` // "bid" | "ask"
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Seq     uint64  `json:"seq"`

	// snapshot 专用
	Bids []levelMessage `json:"bids,omitempty"`
	Asks []levelMessage `json:"asks,omitempty"`
}

type levelMessage struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// subscribeMessage 订阅/重同步请求
type subscribeMessage struct {
	Action   string   `json:"action"` // "subscribe" | "resync"
	TokenIDs []string `json:"token_ids"`
}

// MarketFeed 行情 WebSocket 客户端：把 delta/snapshot 灌进订单簿镜像。
// 失序（FeedDesyncError）时立即对该 token 请求全量重同步；
// 断线重连后对所有已订阅 token 重同步，绝不带脏簿继续。
type MarketFeed struct {
	cfg    Config
	mirror *book.Mirror

	mu     sync.Mutex
	conn   *websocket.Conn
	tokens map[string]struct{} // 已订阅 token

	reconnectC chan struct{}
	sg         *syncgroup.SyncGroup
}

// NewMarketFeed 创建行情客户端
func NewMarketFeed(cfg Config, mirror *book.Mirror) *MarketFeed {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 10
	}
	return &MarketFeed{
		cfg:        cfg,
		mirror:     mirror,
		tokens:     make(map[string]struct{}),
		reconnectC: make(chan struct{}, 1),
		sg:         syncgroup.NewSyncGroup(),
	}
}

// Subscribe 订阅市场（两个 token 一起订）
func (f *MarketFeed) Subscribe(market *domain.Market) error {
	f.mirror.Register(market)

	f.mu.Lock()
	f.tokens[market.YesTokenID] = struct{}{}
	f.tokens[market.NoTokenID] = struct{}{}
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return nil // 连接建立时统一补发
	}
	return f.send(subscribeMessage{
		Action:   "subscribe",
		TokenIDs: []string{market.YesTokenID, market.NoTokenID},
	})
}

// Start 建立连接并启动读循环 / 重连循环（非阻塞）
func (f *MarketFeed) Start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		return err
	}
	f.sg.Add(func() { f.readLoop(ctx) })
	f.sg.Add(func() { f.reconnectLoop(ctx) })
	f.sg.Run()
	return nil
}

// Wait 等待所有内部 goroutine 退出
func (f *MarketFeed) Wait() {
	f.sg.Wait()
}

func (f *MarketFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "连接行情 WebSocket 失败: %s", f.cfg.URL)
	}

	f.mu.Lock()
	f.conn = conn
	tokens := make([]string, 0, len(f.tokens))
	for t := range f.tokens {
		tokens = append(tokens, t)
	}
	f.mu.Unlock()

	if len(tokens) > 0 {
		if err := f.send(subscribeMessage{Action: "subscribe", TokenIDs: tokens}); err != nil {
			return err
		}
		// 重连视作全量失效：所有 token 请求快照
		if err := f.send(subscribeMessage{Action: "resync", TokenIDs: tokens}); err != nil {
			return err
		}
	}
	logger.Infof("[feed] 行情连接建立: %s (tokens=%d)", f.cfg.URL, len(tokens))
	return nil
}

func (f *MarketFeed) send(msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return errors.New("feed not connected")
	}
	return f.conn.WriteJSON(msg)
}

// signalReconnect 触发重连（非阻塞，信号合并）
func (f *MarketFeed) signalReconnect() {
	select {
	case f.reconnectC <- struct{}{}:
	default:
	}
}

func (f *MarketFeed) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("[feed] 读取失败，触发重连: %v", err)
			f.signalReconnect()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}
		f.dispatch(raw)
	}
}

// dispatch 解析并应用一条行情消息
func (f *MarketFeed) dispatch(raw []byte) {
	var msg deltaMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Debugf("[feed] 消息解析失败: %v", err)
		return
	}

	switch msg.Type {
	case "snapshot":
		bids := toLevels(msg.Bids)
		asks := toLevels(msg.Asks)
		if err := f.mirror.ApplySnapshot(msg.TokenID, bids, asks, msg.Seq); err != nil {
			logger.Warnf("[feed] 快照应用失败 token=%s: %v", msg.TokenID, err)
		}

	case "delta":
		side := domain.BookSideBid
		if msg.Side == "ask" {
			side = domain.BookSideAsk
		}
		err := f.mirror.ApplyDelta(msg.TokenID, side, domain.PriceFromDecimal(msg.Price), msg.Size, msg.Seq)
		if err == nil {
			metrics.DeltasApplied.Add(1)
			return
		}

		var desync *book.FeedDesyncError
		if errors.As(err, &desync) {
			// 失序绝不静默应用：标脏 + 立即请求全量重建
			metrics.Desyncs.Add(1)
			logger.Warnf("[feed] %v，请求重同步", desync)
			if serr := f.send(subscribeMessage{Action: "resync", TokenIDs: []string{msg.TokenID}}); serr != nil {
				logger.Errorf("[feed] 重同步请求失败: %v", serr)
				f.signalReconnect()
			}
			return
		}
		logger.Debugf("[feed] delta 应用失败: %v", err)
	}
}

func toLevels(ls []levelMessage) []book.Level {
	out := make([]book.Level, 0, len(ls))
	for _, l := range ls {
		out = append(out, book.Level{Price: domain.PriceFromDecimal(l.Price), Size: l.Size})
	}
	return out
}

// reconnectLoop 信号驱动的重连（指数级递增延迟）
func (f *MarketFeed) reconnectLoop(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.reconnectC:
		}

		for attempts = 0; attempts < f.cfg.MaxReconnects; attempts++ {
			delay := time.Duration(attempts+1) * f.cfg.ReconnectDelay
			logger.Infof("[feed] %s 后重连 (第 %d/%d 次)", delay, attempts+1, f.cfg.MaxReconnects)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			f.closeConn()
			if err := f.connect(ctx); err == nil {
				break
			} else {
				logger.Warnf("[feed] 重连失败: %v", err)
			}
		}
		if attempts >= f.cfg.MaxReconnects {
			logger.Errorf("[feed] 重连超过上限 %d 次，放弃", f.cfg.MaxReconnects)
			return
		}
	}
}

func (f *MarketFeed) closeConn() {
	f.mu.Lock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()
}

// Close 关闭连接
func (f *MarketFeed) Close() {
	f.closeConn()
}
