// Package sigchan 提供边沿触发的信号通道：只表达“有事发生”，不携带数据。
// 缓冲区满时信号自动合并，生产者永不阻塞。
package sigchan

// Chan 可合并的信号通道
type Chan struct {
	c chan struct{}
}

// New 创建信号通道，bufferSize 为可积压的未消费信号数
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发出信号。缓冲已满时与待消费信号合并，不阻塞调用方。
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回只读端，供消费侧 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Drain 丢弃所有积压信号，消费侧在整批处理后调用可避免空转一轮
func (c *Chan) Drain() {
	for {
		select {
		case <-c.c:
		default:
			return
		}
	}
}
