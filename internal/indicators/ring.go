package indicators

// Ring 定容环形缓冲（存放 mid price 序列），满后覆盖最旧值。
type Ring struct {
	buf   []float64
	head  int
	count int
}

// NewRing 创建容量为 capacity 的环形缓冲
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push 追加一个值（满时覆盖最旧）
func (r *Ring) Push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len 当前元素个数
func (r *Ring) Len() int {
	return r.count
}

// Values 按时间先后顺序返回所有元素（最旧在前）
func (r *Ring) Values() []float64 {
	out := make([]float64, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Last 返回最新值
func (r *Ring) Last() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx], true
}
