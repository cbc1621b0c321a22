package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/scanner"
)

// Mode 策略启用模式
type Mode string

const (
	ModeGabagool Mode = "gabagool"
	ModeMomentum Mode = "momentum"
	ModeBoth     Mode = "both"
)

// Strategy 策略接口：输入已评分机会与当前库存，输出零或多个下单意图。
// 固定的封闭集合（gabagool / momentum），由配置选择，不做运行时类型探测。
type Strategy interface {
	Name() string
	// Evaluate 返回意图列表；无动作返回空切片。
	Evaluate(ctx context.Context, opp *scanner.Opportunity, inv domain.MarketInventory) ([]*domain.OrderIntent, error)
	// SetParams 原子更新参数（引擎保证只在两次评估之间调用）。
	SetParams(params map[string]float64) error
}

// Registry 策略注册表
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry 创建新的策略注册表
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register 注册策略
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("策略 %s 已存在", name)
	}
	r.strategies[name] = s
	return nil
}

// Get 获取策略
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.strategies[name]
	if !exists {
		return nil, fmt.Errorf("策略 %s 不存在", name)
	}
	return s, nil
}

// Active 按模式返回启用的策略集合
func (r *Registry) Active(mode Mode) []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch mode {
	case ModeGabagool:
		names = []string{"gabagool"}
	case ModeMomentum:
		names = []string{"momentum"}
	default:
		names = []string{"gabagool", "momentum"}
	}

	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		if s, ok := r.strategies[n]; ok {
			out = append(out, s)
		}
	}
	return out
}

// List 列出所有策略名称
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}
