package book

import (
	"sort"

	"github.com/betbot/gabagool/internal/domain"
)

// Level 订单簿单档（价格 + 聚合数量）
type Level struct {
	Price domain.Price
	Size  float64
}

// ladder 单侧价格阶梯：按价格升序存放，二分插入/删除 O(log n)，
// 读最优档 O(1)（bid 取尾部，ask 取头部）。
type ladder struct {
	side   domain.BookSide
	levels []Level
}

func newLadder(side domain.BookSide) *ladder {
	return &ladder{side: side}
}

// find 返回价格 p 应在的下标以及是否命中
func (l *ladder) find(p domain.Price) (int, bool) {
	i := sort.Search(len(l.levels), func(i int) bool {
		return l.levels[i].Price.Pips >= p.Pips
	})
	if i < len(l.levels) && l.levels[i].Price.Pips == p.Pips {
		return i, true
	}
	return i, false
}

// set 更新或插入价格档；size <= 0 表示删除该档
func (l *ladder) set(p domain.Price, size float64) {
	i, ok := l.find(p)
	if size <= 0 {
		if ok {
			l.levels = append(l.levels[:i], l.levels[i+1:]...)
		}
		return
	}
	if ok {
		l.levels[i].Size = size
		return
	}
	l.levels = append(l.levels, Level{})
	copy(l.levels[i+1:], l.levels[i:])
	l.levels[i] = Level{Price: p, Size: size}
}

// best 返回最优档（bid 最高价，ask 最低价）
func (l *ladder) best() (Level, bool) {
	if len(l.levels) == 0 {
		return Level{}, false
	}
	if l.side == domain.BookSideBid {
		return l.levels[len(l.levels)-1], true
	}
	return l.levels[0], true
}

// top 返回最优的 n 档（从最优到次优）
func (l *ladder) top(n int) []Level {
	if n <= 0 || len(l.levels) == 0 {
		return nil
	}
	if n > len(l.levels) {
		n = len(l.levels)
	}
	out := make([]Level, 0, n)
	if l.side == domain.BookSideBid {
		for i := len(l.levels) - 1; i >= len(l.levels)-n; i-- {
			out = append(out, l.levels[i])
		}
		return out
	}
	out = append(out, l.levels[:n]...)
	return out
}

// replace 整体替换（全量快照重建）
func (l *ladder) replace(levels []Level) {
	ls := make([]Level, 0, len(levels))
	for _, lv := range levels {
		if lv.Size > 0 {
			ls = append(ls, lv)
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Price.Pips < ls[j].Price.Pips })
	l.levels = ls
}
