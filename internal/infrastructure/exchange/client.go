package exchange

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/execution"
	"github.com/betbot/gabagool/pkg/ratelimit"
)

// Config 交易所客户端配置
type Config struct {
	Host    string        // REST 基地址
	APIKey  string        // API key（.env 注入）
	Timeout time.Duration // 客户端级超时（单次调用超时由执行层 ctx 控制）
}

// Client 交易所 REST 客户端（ports.ExchangeOps 实现）。
// 所有响应按错误分级映射：429/5xx/超时 -> TransientExchangeError，
// 4xx 业务拒绝 -> RejectedOrderError；执行层据此决定重试与熔断计数。
type Client struct {
	client *resty.Client
	limits *ratelimit.RateLimitManager
}

// NewClient 创建交易所客户端
func NewClient(cfg Config) *Client {
	host := strings.TrimSuffix(cfg.Host, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY / HTTPS_PROXY）
	rc := resty.New().
		SetBaseURL(host).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Connection", "keep-alive")
	if cfg.APIKey != "" {
		rc.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{
		client: rc,
		limits: ratelimit.NewRateLimitManager(),
	}
}

// orderRequest 下单请求（字段命名的结构化记录，不用位置式编码）
type orderRequest struct {
	TokenID   string  `json:"token_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Signature string  `json:"signature,omitempty"`
}

// orderResponse 下单响应
type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitOrder 提交订单；sig 为预签名产物（可为 nil，服务端内联签名流程）。
func (c *Client) SubmitOrder(ctx context.Context, order *domain.Order, sig *domain.Signature) (*domain.Order, error) {
	if order == nil || !order.Price.IsValid() || order.Size <= 0 {
		return nil, &execution.RejectedOrderError{Op: "submit", Reason: "invalid order"}
	}
	if err := c.limits.Wait(ctx, "exchange:order:post"); err != nil {
		return nil, err
	}

	req := orderRequest{
		TokenID: order.TokenID,
		Side:    string(order.Side),
		Price:   order.Price.ToDecimal(),
		Size:    order.Size,
	}
	if sig != nil {
		req.Signature = sig.Payload
	}

	var out orderResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/orders")
	if err := c.classify("submit", resp, err, out.Message); err != nil {
		return nil, err
	}

	order.OrderID = out.OrderID
	order.Status = domain.OrderStatusAcknowledged
	return order, nil
}

// CancelOrder 撤单
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return &execution.RejectedOrderError{Op: "cancel", Reason: "empty order id"}
	}
	if err := c.limits.Wait(ctx, "exchange:order:delete"); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Delete("/orders/" + orderID)
	return c.classify("cancel", resp, err, "")
}

// Redeem 赎回已结算市场
func (c *Client) Redeem(ctx context.Context, conditionID string) error {
	if conditionID == "" {
		return &execution.RejectedOrderError{Op: "redeem", Reason: "empty condition id"}
	}
	if err := c.limits.Wait(ctx, "exchange:redeem:post"); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"condition_id": conditionID}).
		Post("/redeem")
	return c.classify("redeem", resp, err, "")
}

// Ping 保温请求（服务端时间接口，最轻量）
func (c *Client) Ping(ctx context.Context) error {
	if err := c.limits.Wait(ctx, "exchange:time:get"); err != nil {
		return err
	}
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/time")
	return c.classify("ping", resp, err, "")
}

// classify HTTP 结果 -> 错误分级
func (c *Client) classify(op string, resp *resty.Response, err error, message string) error {
	if err != nil {
		// 传输层失败（含超时）一律视为暂时性
		return &execution.TransientExchangeError{Op: op, Err: errors.Wrap(err, "transport")}
	}
	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return &execution.TransientExchangeError{Op: op, Err: errors.Errorf("http %d", code)}
	default:
		reason := message
		if reason == "" {
			reason = resp.Status()
		}
		return &execution.RejectedOrderError{Op: op, Reason: reason}
	}
}
