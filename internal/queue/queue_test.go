package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/betbot/gabagool/internal/domain"
)

func makeIntent(id, market, token string, score int, prio domain.IntentPriority) *domain.OrderIntent {
	now := time.Now()
	return &domain.OrderIntent{
		ID:         id,
		Strategy:   "test",
		MarketSlug: market,
		TokenID:    token,
		TokenType:  domain.TokenTypeYes,
		Side:       domain.SideBuy,
		Price:      domain.PriceFromDecimal(0.5),
		Size:       10,
		Score:      score,
		Priority:   prio,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Minute),
	}
}

func TestDequeueOrdering(t *testing.T) {
	q := New(16)
	ctx := context.Background()

	low := makeIntent("low", "m1", "t1", 40, domain.PriorityNormal)
	high := makeIntent("high", "m1", "t1", 90, domain.PriorityNormal)
	urgent := makeIntent("urgent", "m1", "t2", 10, domain.PriorityUrgent)

	for _, it := range []*domain.OrderIntent{low, high, urgent} {
		if err := q.Enqueue(it); err != nil {
			t.Fatalf("入队失败: %v", err)
		}
	}

	// urgent 先于一切评分意图，之后按分数降序
	want := []string{"urgent", "high", "low"}
	for _, id := range want {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("出队失败: %v", err)
		}
		if got.ID != id {
			t.Errorf("出队顺序错误: want %s got %s", id, got.ID)
		}
	}
}

func TestDequeueTiebreakByCreatedAt(t *testing.T) {
	q := New(16)
	ctx := context.Background()

	older := makeIntent("older", "m1", "t1", 50, domain.PriorityNormal)
	newer := makeIntent("newer", "m1", "t1", 50, domain.PriorityNormal)
	newer.CreatedAt = older.CreatedAt.Add(time.Millisecond)

	_ = q.Enqueue(newer)
	_ = q.Enqueue(older)

	got, _ := q.Dequeue(ctx)
	if got.ID != "older" {
		t.Errorf("同分应先到先出, got %s", got.ID)
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(16)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan *domain.OrderIntent, 1)
	go func() {
		it, err := q.Dequeue(ctx)
		if err != nil {
			t.Errorf("出队失败: %v", err)
			return
		}
		done <- it
	}()

	time.Sleep(20 * time.Millisecond)
	_ = q.Enqueue(makeIntent("a", "m1", "t1", 50, domain.PriorityNormal))

	select {
	case it := <-done:
		if it.ID != "a" {
			t.Errorf("唤醒后应拿到 a, got %s", it.ID)
		}
	case <-ctx.Done():
		t.Fatal("消费者未被入队唤醒")
	}
}

func TestInvalidate(t *testing.T) {
	q := New(16)

	_ = q.Enqueue(makeIntent("a", "m1", "t1", 50, domain.PriorityNormal))
	_ = q.Enqueue(makeIntent("b", "m1", "t1", 60, domain.PriorityNormal))
	_ = q.Enqueue(makeIntent("c", "m1", "t2", 70, domain.PriorityNormal))

	if n := q.Invalidate("m1", "t1"); n != 2 {
		t.Errorf("应失效 2 条, got %d", n)
	}
	if q.Len() != 1 {
		t.Errorf("失效后应剩 1 条, got %d", q.Len())
	}

	got, _ := q.Dequeue(context.Background())
	if got.ID != "c" {
		t.Errorf("失效条目不应出队, got %s", got.ID)
	}
}

func TestInvalidateSparesUrgent(t *testing.T) {
	q := New(16)

	_ = q.Enqueue(makeIntent("stale", "m1", "t1", 50, domain.PriorityNormal))
	_ = q.Enqueue(makeIntent("liq", "m1", "t1", 100, domain.PriorityUrgent))

	// 新信号只取代评分意图，强平意图必须活到执行
	if n := q.Invalidate("m1", "t1"); n != 1 {
		t.Errorf("应只失效评分意图, got %d", n)
	}

	got, _ := q.Dequeue(context.Background())
	if got.ID != "liq" {
		t.Errorf("强平意图应存活, got %s", got.ID)
	}
	if q.Len() != 0 {
		t.Errorf("失效后队列应清空, got %d", q.Len())
	}
}

func TestExpiredDroppedOnDequeue(t *testing.T) {
	q := New(16)

	expired := makeIntent("expired", "m1", "t1", 99, domain.PriorityNormal)
	expired.ExpiresAt = time.Now().Add(-time.Second)
	live := makeIntent("live", "m1", "t1", 10, domain.PriorityNormal)

	_ = q.Enqueue(expired)
	_ = q.Enqueue(live)

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("出队失败: %v", err)
	}
	if got.ID != "live" {
		t.Errorf("过期意图应被丢弃, got %s", got.ID)
	}
}

func TestCapacityEviction(t *testing.T) {
	q := New(2)

	_ = q.Enqueue(makeIntent("s30", "m1", "t1", 30, domain.PriorityNormal))
	_ = q.Enqueue(makeIntent("s50", "m1", "t1", 50, domain.PriorityNormal))

	// 更低分的新意图被拒绝
	if err := q.Enqueue(makeIntent("s20", "m1", "t1", 20, domain.PriorityNormal)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("低分新意图应返回 ErrQueueFull, got %v", err)
	}

	// 更高分的新意图挤掉最低分
	if err := q.Enqueue(makeIntent("s80", "m1", "t1", 80, domain.PriorityNormal)); err != nil {
		t.Fatalf("高分新意图应入队: %v", err)
	}

	ctx := context.Background()
	first, _ := q.Dequeue(ctx)
	second, _ := q.Dequeue(ctx)
	if first.ID != "s80" || second.ID != "s50" {
		t.Errorf("队列应剩 s80, s50, got %s, %s", first.ID, second.ID)
	}
}

func TestTakePair(t *testing.T) {
	q := New(16)

	legA := makeIntent("legA", "m1", "t1", 80, domain.PriorityNormal)
	legB := makeIntent("legB", "m1", "t2", 80, domain.PriorityNormal)
	legA.PairID = "pair-1"
	legB.PairID = "pair-1"

	_ = q.Enqueue(legA)
	_ = q.Enqueue(legB)

	got := q.TakePair("pair-1", "legA")
	if got == nil || got.ID != "legB" {
		t.Fatalf("TakePair 应取走另一条腿, got %v", got)
	}
	if q.TakePair("pair-1", "legA") != nil {
		t.Error("腿已取走，重复取应返回 nil")
	}
	if q.Len() != 1 {
		t.Errorf("取走一腿后队列应剩 1 条, got %d", q.Len())
	}
}

func TestCloseWakesAllConsumers(t *testing.T) {
	q := New(16)

	// 多个消费者同时挂起，Close 必须全部唤醒
	const consumers = 4
	errC := make(chan error, consumers)
	for i := 0; i < consumers; i++ {
		go func() {
			_, err := q.Dequeue(context.Background())
			errC <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	q.Close() // 幂等

	for i := 0; i < consumers; i++ {
		select {
		case err := <-errC:
			if !errors.Is(err, ErrQueueClosed) {
				t.Errorf("关闭后出队应返回 ErrQueueClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Close 未唤醒全部消费者")
		}
	}

	if err := q.Enqueue(makeIntent("x", "m1", "t1", 1, domain.PriorityNormal)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("关闭后入队应返回 ErrQueueClosed, got %v", err)
	}
}
