package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/syncgroup"
)

// fillMessage 用户成交推送
type fillMessage struct {
	Type      string  `json:"type"` // "fill"
	FillID    string  `json:"fill_id"`
	OrderID   string  `json:"order_id"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // 毫秒
}

// orderMessage 订单状态推送
type orderMessage struct {
	Type       string  `json:"type"` // "order"
	OrderID    string  `json:"order_id"`
	Status     string  `json:"status"`
	FilledSize float64 `json:"filled_size"`
}

// UserFeed 用户流 WebSocket 客户端：把逐笔成交和订单状态转发给处理器。
// 成交的幂等去重在处理器里做，这里只负责搬运。
type UserFeed struct {
	url     string
	apiKey  string
	handler ports.UserStreamHandler

	mu   sync.Mutex
	conn *websocket.Conn
	sg   *syncgroup.SyncGroup
}

// NewUserFeed 创建用户流客户端
func NewUserFeed(url, apiKey string, handler ports.UserStreamHandler) *UserFeed {
	return &UserFeed{
		url:     url,
		apiKey:  apiKey,
		handler: handler,
		sg:      syncgroup.NewSyncGroup(),
	}
}

// Start 建立连接并启动读循环（非阻塞）
func (u *UserFeed) Start(ctx context.Context) error {
	if err := u.connect(ctx); err != nil {
		return err
	}
	u.sg.Add(func() { u.readLoop(ctx) })
	u.sg.Run()
	return nil
}

// Wait 等待读循环退出
func (u *UserFeed) Wait() {
	u.sg.Wait()
}

func (u *UserFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.url, nil)
	if err != nil {
		return errors.Wrapf(err, "连接用户 WebSocket 失败: %s", u.url)
	}
	auth := map[string]string{"action": "auth", "api_key": u.apiKey}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "用户流认证失败")
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	logger.Infof("[feed] 用户流连接建立: %s", u.url)
	return nil
}

func (u *UserFeed) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		u.mu.Lock()
		conn := u.conn
		u.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("[feed] 用户流读取失败，重连: %v", err)
			u.closeConn()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			if cerr := u.connect(ctx); cerr != nil {
				logger.Errorf("[feed] 用户流重连失败: %v", cerr)
			}
			continue
		}

		u.dispatch(ctx, raw)
	}
}

// dispatch 按消息类型分发：成交走 OnFill，订单状态走 OnOrderUpdate。
func (u *UserFeed) dispatch(ctx context.Context, raw []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Type {
	case "fill":
		var msg fillMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		fill := &domain.Fill{
			FillID:    msg.FillID,
			OrderID:   msg.OrderID,
			Size:      msg.Size,
			Price:     domain.PriceFromDecimal(msg.Price),
			Timestamp: time.UnixMilli(msg.Timestamp),
		}
		if err := u.handler.OnFill(ctx, fill); err != nil {
			logger.Warnf("[feed] 成交处理失败 fill=%s: %v", msg.FillID, err)
		}
	case "order":
		var msg orderMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		update := &domain.Order{
			OrderID:    msg.OrderID,
			Status:     domain.OrderStatus(msg.Status),
			FilledSize: msg.FilledSize,
		}
		if err := u.handler.OnOrderUpdate(ctx, update); err != nil {
			logger.Warnf("[feed] 订单更新处理失败 order=%s: %v", msg.OrderID, err)
		}
	}
}

func (u *UserFeed) closeConn() {
	u.mu.Lock()
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
	u.mu.Unlock()
}

// Close 关闭连接
func (u *UserFeed) Close() {
	u.closeConn()
}
