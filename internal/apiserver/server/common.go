// Package server 路由与跨领域中间件
//
// 本包组装各领域包（auth、payment、post、diag）的路由，并负责：
//   - common.go: Handler 定义、健康检查、OpenAPI 文档
//   - handler.go: 路由与中间件链
//   - middleware.go: 请求日志、安全头、CORS、限流、请求体大小
//   - metrics.go: Prometheus 指标
//   - feed.go: 员工端付款事件 WebSocket 推送
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"payments-portal/api"
	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/config"
	"payments-portal/internal/shared/infra"
	"payments-portal/internal/shared/ratelimit"
	"payments-portal/pkg/logging"
)

// Handler API 入口
//
// 依赖全部来自 infra.Infrastructure，Handler 本身不持有连接。
type Handler struct {
	cfg      *config.Config
	infra    *infra.Infrastructure
	authCfg  auth.Config
	origins  originSet
	metrics  *Metrics
	limiter  *ratelimit.Limiter
	throttle *ratelimit.Throttle
	feed     *PaymentFeed
	logger   *logging.Logger
	frontend http.Handler
}

// Option Handler 可选项
type Option func(*Handler)

// WithLogger 指定日志器（默认 logging.Default("api-server")）
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithFrontend 非 API 路径交给前端处理器（静态文件或开发服务器代理）
func WithFrontend(fe http.Handler) Option {
	return func(h *Handler) { h.frontend = fe }
}

// NewHandler 创建 Handler 实例
func NewHandler(cfg *config.Config, inf *infra.Infrastructure, opts ...Option) *Handler {
	h := &Handler{
		cfg:   cfg,
		infra: inf,
		authCfg: auth.Config{
			JWTSecret:         cfg.Auth.JWTSecret,
			AdminSignupSecret: cfg.Auth.AdminSignupSecret,
			TokenTTL:          cfg.Auth.TokenTTL,
		},
		origins: newOriginSet(cfg.CORS.AllowedOrigins),
		metrics: NewMetrics("payments"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.Default("api-server")
	}

	h.limiter = ratelimit.NewLimiter(inf.RateWindow, cfg.RateLimit.Window, cfg.RateLimit.Max)
	h.throttle = ratelimit.NewThrottle(inf.RateLimit, ratelimit.ThrottleConfig{
		FreeRetries: cfg.Auth.LoginThrottle.FreeRetries,
		MinWait:     cfg.Auth.LoginThrottle.MinWait,
		MaxWait:     cfg.Auth.LoginThrottle.MaxWait,
		Lifetime:    cfg.Auth.LoginThrottle.Lifetime,
	})
	h.feed = NewPaymentFeed(inf.EventBus, h.authCfg, h.origins, h.metrics)
	return h
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 写入 {"message": ...} 错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status         string   `json:"status"`
	Timestamp      string   `json:"timestamp"`
	Secure         bool     `json:"secure"`
	Protocol       string   `json:"protocol"`
	CORS           string   `json:"cors"`
	AllowedOrigins []string `json:"allowedOrigins"`
	Database       string   `json:"database"`
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 数据库不可达时返回 503，status 为 DEGRADED。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "OK",
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Secure:         r.TLS != nil,
		Protocol:       "http",
		CORS:           "Enabled",
		AllowedOrigins: h.cfg.CORS.AllowedOrigins,
		Database:       "connected",
	}
	if resp.Secure {
		resp.Protocol = "https"
	}
	if resp.AllowedOrigins == nil {
		resp.AllowedOrigins = []string{}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.infra.Storage.Ping(ctx); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Warn("health check: database unreachable")
		resp.Status = "DEGRADED"
		resp.Database = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CORSTest 跨域连通性自检
//
// 路由: GET /cors-test
func (h *Handler) CORSTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "CORS is working!",
		"origin":      r.Header.Get("Origin"),
		"corsEnabled": true,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// OpenAPI 返回嵌入的 OpenAPI 文档
//
// 路由: GET /openapi.yaml
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(api.OpenAPISpec)
}
