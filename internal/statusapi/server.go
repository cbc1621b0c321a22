package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/gabagool/internal/metrics"
	"github.com/betbot/gabagool/pkg/logger"
)

// Engine 状态接口：由引擎实现，避免反向依赖。
type Engine interface {
	// Status 返回当前运行快照（市场、队列深度、熔断器状态等）
	Status() map[string]interface{}
	// SetStrategyParams 在两次评估之间原子替换策略参数
	SetStrategyParams(strategyID string, params map[string]float64) error
}

// Config 状态服务配置
type Config struct {
	Addr string // 监听地址（默认 :8787）
}

// Server 只读状态 + 策略调参的 HTTP 服务
type Server struct {
	cfg    Config
	engine Engine
	srv    *http.Server
}

// New 创建状态服务
func New(cfg Config, engine Engine) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	return &Server{cfg: cfg, engine: engine}
}

// Router 组装路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", s.handleMetrics)
	r.POST("/strategies/:strategyID/params", s.handleSetParams)

	return r
}

// Start 启动 HTTP 服务（非阻塞）
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("[statusapi] 监听 %s", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[statusapi] 服务退出: %v", err)
		}
	}()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Snapshot())
}

func (s *Server) handleSetParams(c *gin.Context) {
	strategyID := c.Param("strategyID")

	var params map[string]float64
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params payload: " + err.Error()})
		return
	}

	if err := s.engine.SetStrategyParams(strategyID, params); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[statusapi] 策略 %s 参数已更新: %v", strategyID, params)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
