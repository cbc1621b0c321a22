package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/sigchan"
)

// ErrQueueClosed 队列已关闭（shutdown 后拒绝新意图）
var ErrQueueClosed = fmt.Errorf("order queue closed")

// ErrQueueFull 队列已满且新意图分数不足以挤掉现有最低分
var ErrQueueFull = fmt.Errorf("order queue full")

// item 堆元素
type item struct {
	intent  *domain.OrderIntent
	index   int
	invalid bool // 惰性失效标记，出队时丢弃
}

// priorityOrder urgent 意图排在一切评分意图之前
func priorityRank(p domain.IntentPriority) int {
	switch p {
	case domain.PriorityUrgent:
		return 2
	case domain.PriorityHigh:
		return 1
	default:
		return 0
	}
}

// intentHeap 最大堆：priority > score 降序 > 创建时间升序
type intentHeap []*item

func (h intentHeap) Len() int { return len(h) }

func (h intentHeap) Less(i, j int) bool {
	a, b := h[i].intent, h[j].intent
	if ra, rb := priorityRank(a.Priority), priorityRank(b.Priority); ra != rb {
		return ra > rb
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (h intentHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *intentHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *intentHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue 下单意图优先队列：入队非阻塞，出队挂起等待。
// 容量有限，满时按“保新弃旧”策略挤掉最低优先级意图。
type Queue struct {
	mu       sync.Mutex
	heap     intentHeap
	byKey    map[string][]*item // market|token -> items（失效索引）
	byPair   map[string][]*item // pairID -> items（双腿取齐）
	capacity int
	closed   bool

	signal *sigchan.Chan
	done   chan struct{}
}

// New 创建容量为 capacity 的队列
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	q := &Queue{
		byKey:    make(map[string][]*item),
		byPair:   make(map[string][]*item),
		capacity: capacity,
		signal:   sigchan.New(1),
		done:     make(chan struct{}),
	}
	heap.Init(&q.heap)
	return q
}

func key(marketSlug, tokenID string) string {
	return marketSlug + "|" + tokenID
}

// Enqueue 非阻塞入队。队列满时：新意图排序高于当前最低者则挤掉最低者，
// 否则返回 ErrQueueFull（背压策略偏向最新最优信号而不是 FIFO 公平）。
func (q *Queue) Enqueue(intent *domain.OrderIntent) error {
	if intent == nil || intent.Size <= 0 {
		return fmt.Errorf("invalid intent")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	it := &item{intent: intent}

	if q.liveCountLocked() >= q.capacity {
		lowest := q.lowestLocked()
		if lowest == nil || !q.ranksAbove(intent, lowest.intent) {
			return ErrQueueFull
		}
		q.removeLocked(lowest)
		logger.Debugf("[queue] 容量满，挤掉最低分意图 %s (score=%d)", lowest.intent.ID, lowest.intent.Score)
	}

	heap.Push(&q.heap, it)
	k := key(intent.MarketSlug, intent.TokenID)
	q.byKey[k] = append(q.byKey[k], it)
	if intent.PairID != "" {
		q.byPair[intent.PairID] = append(q.byPair[intent.PairID], it)
	}

	q.signal.Emit()
	return nil
}

// ranksAbove a 是否应排在 b 之前（与堆序一致）
func (q *Queue) ranksAbove(a, b *domain.OrderIntent) bool {
	if ra, rb := priorityRank(a.Priority), priorityRank(b.Priority); ra != rb {
		return ra > rb
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// liveCountLocked 有效（未失效）元素个数
func (q *Queue) liveCountLocked() int {
	n := 0
	for _, it := range q.heap {
		if !it.invalid {
			n++
		}
	}
	return n
}

// lowestLocked 找到当前排序最低的有效元素（容量淘汰用，O(n)）
func (q *Queue) lowestLocked() *item {
	var lowest *item
	for _, it := range q.heap {
		if it.invalid {
			continue
		}
		if lowest == nil || q.ranksAbove(lowest.intent, it.intent) {
			lowest = it
		}
	}
	return lowest
}

func (q *Queue) removeLocked(it *item) {
	if it.index >= 0 {
		heap.Remove(&q.heap, it.index)
	}
	it.invalid = true
}

// Dequeue 阻塞出队：挂起直到有有效意图或 ctx 取消。
// 失效/过期意图在此处丢弃，绝不交给执行层。
func (q *Queue) Dequeue(ctx context.Context) (*domain.OrderIntent, error) {
	for {
		q.mu.Lock()
		for q.heap.Len() > 0 {
			it := heap.Pop(&q.heap).(*item)
			if it.invalid {
				continue
			}
			if it.intent.Expired(time.Now()) {
				logger.Debugf("[queue] 丢弃过期意图 %s", it.intent.ID)
				q.detachLocked(it)
				continue
			}
			q.detachLocked(it)
			q.mu.Unlock()
			return it.intent, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.signal.C():
		}
	}
}

// TakePair 取走 pairID 对应的另一条腿（双腿并发下单用）。
// 不存在或已失效返回 nil。
func (q *Queue) TakePair(pairID, excludeIntentID string) *domain.OrderIntent {
	if pairID == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.byPair[pairID] {
		if it.invalid || it.intent.ID == excludeIntentID {
			continue
		}
		if it.intent.Expired(time.Now()) {
			continue
		}
		q.removeLocked(it)
		q.detachLocked(it)
		return it.intent
	}
	return nil
}

// detachLocked 从索引中摘除（元素已出堆）
func (q *Queue) detachLocked(it *item) {
	it.invalid = true
	k := key(it.intent.MarketSlug, it.intent.TokenID)
	q.byKey[k] = pruneInvalid(q.byKey[k])
	if len(q.byKey[k]) == 0 {
		delete(q.byKey, k)
	}
	if p := it.intent.PairID; p != "" {
		q.byPair[p] = pruneInvalid(q.byPair[p])
		if len(q.byPair[p]) == 0 {
			delete(q.byPair, p)
		}
	}
}

func pruneInvalid(items []*item) []*item {
	out := items[:0]
	for _, it := range items {
		if !it.invalid {
			out = append(out, it)
		}
	}
	return out
}

// Invalidate 按市场+token 失效所有待执行意图（新信号取代旧信号时调用）。
// urgent 意图不受影响：强平不依赖评估时的价格，必须活到执行或过期。
// 返回失效条数。
func (q *Queue) Invalidate(marketSlug, tokenID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key(marketSlug, tokenID)
	n := 0
	var kept []*item
	for _, it := range q.byKey[k] {
		if it.invalid {
			continue
		}
		if it.intent.Priority == domain.PriorityUrgent {
			kept = append(kept, it)
			continue
		}
		q.removeLocked(it)
		n++
	}
	if len(kept) > 0 {
		q.byKey[k] = kept
	} else {
		delete(q.byKey, k)
	}
	return n
}

// Len 当前有效意图数量
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.liveCountLocked()
}

// Close 关闭队列：拒绝新意图，唤醒所有等待的消费者。幂等。
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done) // 广播：唤醒任意数量的挂起消费者
	q.mu.Unlock()
}
