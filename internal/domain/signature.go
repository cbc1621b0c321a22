package domain

import "time"

// Signature 订单签名产物（预签名引擎缓存的对象）。
// 核心不关心具体签名算法，只负责在 TTL 内携带给交易所客户端。
type Signature struct {
	Payload   string    // 序列化后的签名负载
	SignedAt  time.Time // 签名时间
	ExpiresAt time.Time // 过期时间（过期后必须重签）
}

// Valid 检查签名在 now 时刻是否仍然可用
func (s *Signature) Valid(now time.Time) bool {
	return s != nil && s.Payload != "" && now.Before(s.ExpiresAt)
}
