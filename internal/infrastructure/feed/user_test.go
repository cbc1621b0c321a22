package feed

import (
	"context"
	"testing"

	"github.com/betbot/gabagool/internal/domain"
)

// recordHandler 记录用户流回调（ports.UserStreamHandler 桩）
type recordHandler struct {
	fills  []*domain.Fill
	orders []*domain.Order
}

func (h *recordHandler) OnFill(_ context.Context, fill *domain.Fill) error {
	h.fills = append(h.fills, fill)
	return nil
}

func (h *recordHandler) OnOrderUpdate(_ context.Context, order *domain.Order) error {
	h.orders = append(h.orders, order)
	return nil
}

func TestDispatchRoutesFill(t *testing.T) {
	h := &recordHandler{}
	u := NewUserFeed("ws://unused", "key", h)

	raw := []byte(`{"type":"fill","fill_id":"f1","order_id":"o1","size":25,"price":0.47,"timestamp":1724800000000}`)
	u.dispatch(context.Background(), raw)

	if len(h.fills) != 1 || len(h.orders) != 0 {
		t.Fatalf("fill 消息应只走 OnFill, fills=%d orders=%d", len(h.fills), len(h.orders))
	}
	got := h.fills[0]
	if got.FillID != "f1" || got.OrderID != "o1" || got.Size != 25 {
		t.Errorf("fill 字段映射错误: %+v", got)
	}
	if got.Price != domain.PriceFromDecimal(0.47) {
		t.Errorf("价格应为 0.47, got %v", got.Price.ToDecimal())
	}
}

func TestDispatchRoutesOrderUpdate(t *testing.T) {
	h := &recordHandler{}
	u := NewUserFeed("ws://unused", "key", h)

	raw := []byte(`{"type":"order","order_id":"o1","status":"canceled","filled_size":10}`)
	u.dispatch(context.Background(), raw)

	if len(h.orders) != 1 || len(h.fills) != 0 {
		t.Fatalf("order 消息应只走 OnOrderUpdate, fills=%d orders=%d", len(h.fills), len(h.orders))
	}
	got := h.orders[0]
	if got.OrderID != "o1" || got.Status != domain.OrderStatusCanceled || got.FilledSize != 10 {
		t.Errorf("order 字段映射错误: %+v", got)
	}
}

func TestDispatchIgnoresUnknown(t *testing.T) {
	h := &recordHandler{}
	u := NewUserFeed("ws://unused", "key", h)

	u.dispatch(context.Background(), []byte(`{"type":"heartbeat"}`))
	u.dispatch(context.Background(), []byte(`not json`))

	if len(h.fills) != 0 || len(h.orders) != 0 {
		t.Errorf("未知消息应被忽略, fills=%d orders=%d", len(h.fills), len(h.orders))
	}
}
