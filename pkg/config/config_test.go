package config

import "testing"

func loadWith(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	t.Setenv("DRY_RUN", "true")
	t.Setenv("GABAGOOL_ENABLED", "true")
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load("")
}

func TestStrategyModeDefault(t *testing.T) {
	cfg, err := loadWith(t, nil)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.StrategyMode != "both" {
		t.Errorf("strategy_mode 默认应为 both, got %s", cfg.StrategyMode)
	}
}

func TestStrategyModeEnvOverride(t *testing.T) {
	cfg, err := loadWith(t, map[string]string{
		"STRATEGY_MODE":    "momentum",
		"MOMENTUM_ENABLED": "true",
	})
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.StrategyMode != "momentum" {
		t.Errorf("STRATEGY_MODE 覆盖失效, got %s", cfg.StrategyMode)
	}
}

func TestStrategyModeInvalid(t *testing.T) {
	if _, err := loadWith(t, map[string]string{"STRATEGY_MODE": "bogus"}); err == nil {
		t.Error("未知 strategy_mode 应验证失败")
	}
}
