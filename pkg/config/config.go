package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ExchangeConfig 交易所接入配置
type ExchangeConfig struct {
	Host      string `yaml:"host"`       // REST 地址
	MarketWS  string `yaml:"market_ws"`  // 行情 WebSocket 地址
	UserWS    string `yaml:"user_ws"`    // 用户成交 WebSocket 地址
	APIKey    string `yaml:"api_key"`    // API key（建议通过环境变量注入）
	APISecret string `yaml:"api_secret"` // 签名密钥
	TimeoutMS int    `yaml:"timeout_ms"` // 单次请求超时（毫秒，默认 10000）
}

// ScannerConfig 扫描/评分配置
type ScannerConfig struct {
	PairCostCeiling float64 `yaml:"pair_cost_ceiling"` // 配对成本上限（默认 0.995）
	VolumeFloor     float64 `yaml:"volume_floor"`      // 成交量下限
	ScanIntervalMS  int     `yaml:"scan_interval_ms"`  // 兜底扫描间隔（毫秒，默认 1000）
}

// GabagoolStrategyConfig 配对套利策略配置
type GabagoolStrategyConfig struct {
	Enabled    bool    `yaml:"enabled"`
	MarginPips int     `yaml:"margin_pips"` // 要求的最小利润边际（pips，默认 50 = 0.5c）
	Capital    float64 `yaml:"capital"`     // 策略可用资金（USDC）
	MaxSkew    float64 `yaml:"max_skew"`    // 允许的最大持仓偏斜（shares）
}

// MomentumStrategyConfig 动量策略配置
type MomentumStrategyConfig struct {
	Enabled        bool    `yaml:"enabled"`
	WindowSeconds  int     `yaml:"window_seconds"`   // 开盘后的参与窗口（秒，默认 90）
	MinPayoutRatio float64 `yaml:"min_payout_ratio"` // 最小赔付率 1/pairCost（默认 1.02）
	AsymmetryCap   float64 `yaml:"asymmetry_cap"`    // 两腿持仓的最大不对称倍数（默认 1.5）
	MaxNakedShares float64 `yaml:"max_naked_shares"` // 无对侧持仓时的裸头寸上限
	Capital        float64 `yaml:"capital"`          // 策略可用资金（USDC）
}

// SizingConfig Kelly 仓位配置
type SizingConfig struct {
	Fraction  float64 `yaml:"fraction"`   // Kelly 缩放系数（默认 0.5 = half Kelly）
	MinTrades int     `yaml:"min_trades"` // 样本不足阈值（默认 10）
	Lookback  int     `yaml:"lookback"`   // 滚动窗口长度（默认 50）
	MinSize   float64 `yaml:"min_size"`   // 样本不足时的保底下单额（USDC）
	MaxSize   float64 `yaml:"max_size"`   // 单笔上限（USDC）
}

// ExecutionConfig 执行器配置
type ExecutionConfig struct {
	Parallelism      int `yaml:"parallelism"`        // 消费者并发数（默认 2）
	QueueCapacity    int `yaml:"queue_capacity"`     // 意图队列容量（默认 256）
	CallTimeoutMS    int `yaml:"call_timeout_ms"`    // 单次交易所调用超时（毫秒）
	BreakerThreshold int `yaml:"breaker_threshold"`  // 连续失败熔断阈值（默认 5）
	BreakerCooldownS int `yaml:"breaker_cooldown_s"` // 熔断冷却（秒，默认 30）
	PresignTopN      int `yaml:"presign_top_n"`      // 预签名候选数（默认 3）
	WarmIntervalS    int `yaml:"warm_interval_s"`    // 连接保活间隔（秒，默认 30）
}

// FillsConfig 成交/库存配置
type FillsConfig struct {
	SkewThreshold     float64 `yaml:"skew_threshold"`      // 偏斜告警阈值（shares，默认 2）
	LiquidationPolicy string  `yaml:"liquidation_policy"`  // market | limit_at_best
	MarketOffsetPips  int     `yaml:"market_offset_pips"`  // market 模式下相对买一的让价（默认 200）
}

// RedeemConfig 自动赎回配置
type RedeemConfig struct {
	Enabled   bool `yaml:"enabled"`
	IntervalS int  `yaml:"interval_s"` // 轮询间隔（秒，默认 60）
}

// Config 应用配置
type Config struct {
	Exchange  ExchangeConfig         `yaml:"exchange"`
	Scanner   ScannerConfig          `yaml:"scanner"`
	Gabagool  GabagoolStrategyConfig `yaml:"gabagool"`
	Momentum  MomentumStrategyConfig `yaml:"momentum"`
	Sizing    SizingConfig           `yaml:"sizing"`
	Execution ExecutionConfig        `yaml:"execution"`
	Fills     FillsConfig            `yaml:"fills"`
	Redeem    RedeemConfig           `yaml:"redeem"`

	StrategyMode string `yaml:"strategy_mode"` // 参与评估的策略集合：gabagool | momentum | both（默认 both）

	StatusAddr string `yaml:"status_addr"` // 状态 API 监听地址（默认 :8787）
	DebugAddr  string `yaml:"debug_addr"`  // expvar/pprof 监听地址（空 = 关闭）
	DataDir    string `yaml:"data_dir"`    // badger 数据目录（默认 data）
	LogLevel   string `yaml:"log_level"`   // 日志级别（默认 info）
	LogFile    string `yaml:"log_file"`    // 日志文件路径
	DryRun     bool   `yaml:"dry_run"`     // 纸交易模式：不发真实订单
}

// Load 加载配置：.env -> 配置文件 -> 环境变量覆盖 -> 默认值 -> 验证。
// filePath 为空时只用环境变量和默认值。
func Load(filePath string) (*Config, error) {
	// .env 是可选的：缺失不报错
	_ = godotenv.Load()

	cfg := &Config{}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", filePath, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖（优先级高于配置文件）
func (c *Config) applyEnv() {
	c.Exchange.Host = getEnv("EXCHANGE_HOST", c.Exchange.Host)
	c.Exchange.MarketWS = getEnv("EXCHANGE_MARKET_WS", c.Exchange.MarketWS)
	c.Exchange.UserWS = getEnv("EXCHANGE_USER_WS", c.Exchange.UserWS)
	c.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", c.Exchange.APISecret)

	c.StatusAddr = getEnv("STATUS_ADDR", c.StatusAddr)
	c.DebugAddr = getEnv("DEBUG_ADDR", c.DebugAddr)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.DryRun = parseBoolEnv("DRY_RUN", c.DryRun)

	c.Gabagool.Enabled = parseBoolEnv("GABAGOOL_ENABLED", c.Gabagool.Enabled)
	c.Gabagool.Capital = parseFloatEnv("GABAGOOL_CAPITAL", c.Gabagool.Capital)
	c.Momentum.Enabled = parseBoolEnv("MOMENTUM_ENABLED", c.Momentum.Enabled)
	c.Momentum.Capital = parseFloatEnv("MOMENTUM_CAPITAL", c.Momentum.Capital)
	c.StrategyMode = getEnv("STRATEGY_MODE", c.StrategyMode)
}

// applyDefaults 填充零值字段的默认值
func (c *Config) applyDefaults() {
	if c.Exchange.TimeoutMS <= 0 {
		c.Exchange.TimeoutMS = 10000
	}
	if c.Scanner.PairCostCeiling <= 0 {
		c.Scanner.PairCostCeiling = 0.995
	}
	if c.Scanner.ScanIntervalMS <= 0 {
		c.Scanner.ScanIntervalMS = 1000
	}
	if c.Gabagool.MarginPips <= 0 {
		c.Gabagool.MarginPips = 50
	}
	if c.Gabagool.Capital <= 0 {
		c.Gabagool.Capital = 1000
	}
	if c.Gabagool.MaxSkew <= 0 {
		c.Gabagool.MaxSkew = 10
	}
	if c.Momentum.WindowSeconds <= 0 {
		c.Momentum.WindowSeconds = 90
	}
	if c.Momentum.MinPayoutRatio <= 0 {
		c.Momentum.MinPayoutRatio = 1.02
	}
	if c.Momentum.AsymmetryCap <= 0 {
		c.Momentum.AsymmetryCap = 1.5
	}
	if c.Momentum.MaxNakedShares <= 0 {
		c.Momentum.MaxNakedShares = 100
	}
	if c.Momentum.Capital <= 0 {
		c.Momentum.Capital = 500
	}
	if c.Sizing.Fraction <= 0 {
		c.Sizing.Fraction = 0.5
	}
	if c.Sizing.MinTrades <= 0 {
		c.Sizing.MinTrades = 10
	}
	if c.Sizing.Lookback <= 0 {
		c.Sizing.Lookback = 50
	}
	if c.Sizing.MinSize <= 0 {
		c.Sizing.MinSize = 1.0
	}
	if c.Sizing.MaxSize <= 0 {
		c.Sizing.MaxSize = 100.0
	}
	if c.Execution.Parallelism <= 0 {
		c.Execution.Parallelism = 2
	}
	if c.Execution.QueueCapacity <= 0 {
		c.Execution.QueueCapacity = 256
	}
	if c.Execution.CallTimeoutMS <= 0 {
		c.Execution.CallTimeoutMS = 5000
	}
	if c.Execution.BreakerThreshold <= 0 {
		c.Execution.BreakerThreshold = 5
	}
	if c.Execution.BreakerCooldownS <= 0 {
		c.Execution.BreakerCooldownS = 30
	}
	if c.Execution.PresignTopN <= 0 {
		c.Execution.PresignTopN = 3
	}
	if c.Execution.WarmIntervalS <= 0 {
		c.Execution.WarmIntervalS = 30
	}
	if c.Fills.SkewThreshold <= 0 {
		c.Fills.SkewThreshold = 2
	}
	if c.Fills.LiquidationPolicy == "" {
		c.Fills.LiquidationPolicy = "market"
	}
	if c.Fills.MarketOffsetPips <= 0 {
		c.Fills.MarketOffsetPips = 200
	}
	if c.Redeem.IntervalS <= 0 {
		c.Redeem.IntervalS = 60
	}
	if c.StrategyMode == "" {
		c.StrategyMode = "both"
	}
	if c.StatusAddr == "" {
		c.StatusAddr = ":8787"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile == "" {
		c.LogFile = "logs/gabagool.log"
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.DryRun {
		if c.Exchange.Host == "" {
			return fmt.Errorf("EXCHANGE_HOST 未配置")
		}
		if c.Exchange.APIKey == "" {
			return fmt.Errorf("EXCHANGE_API_KEY 未配置")
		}
	}
	if !c.Gabagool.Enabled && !c.Momentum.Enabled {
		return fmt.Errorf("至少需要启用一个策略")
	}
	switch c.StrategyMode {
	case "gabagool", "momentum", "both":
	default:
		return fmt.Errorf("未知的 strategy_mode: %s (支持 gabagool, momentum, both)", c.StrategyMode)
	}
	switch c.Fills.LiquidationPolicy {
	case "market", "limit_at_best":
	default:
		return fmt.Errorf("未知的 liquidation_policy: %s (支持 market, limit_at_best)", c.Fills.LiquidationPolicy)
	}
	if c.Sizing.Fraction > 1 {
		return fmt.Errorf("sizing.fraction 不能大于 1")
	}
	return nil
}

// ExchangeTimeout 请求超时
func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Exchange.TimeoutMS) * time.Millisecond
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
