package server

import (
	"log"
	"net/http"
	"strings"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/apiserver/diag"
	"payments-portal/internal/apiserver/payment"
	"payments-portal/internal/apiserver/post"
)

// 后端处理的路径前缀，其余路径交给前端
var backendPrefixes = []string{"/user/", "/payments/", "/post", "/ws/"}

var backendExact = map[string]bool{
	"/health":       true,
	"/cors-test":    true,
	"/metrics":      true,
	"/openapi.yaml": true,
}

// IsBackendPath 判断请求路径是否属于 API
func IsBackendPath(path string) bool {
	if backendExact[path] {
		return true
	}
	for _, prefix := range backendPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 基础:
//   - GET  /health     - 服务健康检查
//   - GET  /cors-test  - 跨域自检
//   - GET  /metrics    - Prometheus 指标
//   - GET  /openapi.yaml - OpenAPI 文档
//
// 认证 (auth):
//   - POST /user/login, /user/register, /user/signup, /user/admin/signup
//   - GET  /user/me
//
// 付款 (payment):
//   - POST  /payments/create           - 客户提交付款
//   - GET   /payments/my-payments      - 客户自己的付款
//   - GET   /payments/history          - 同上，支持分页
//   - GET   /payments/pending          - 员工：待审核
//   - GET   /payments/all              - 员工：全部
//   - PATCH /payments/{id}/status      - 员工：审核
//   - GET   /payments/stats            - 员工：统计
//   - GET   /payments/dashboard/stats  - 同上
//
// 帖子 (post):
//   - GET /post, GET /post/{id}, POST /post/upload, PATCH /post/{id}, DELETE /post/{id}
//
// 诊断 (diag，server.debug_routes 开启且非 prod):
//   - GET /payments/test-db, GET /payments/debug-data
//
// WebSocket:
//   - GET /ws/payments - 付款事件推送（员工）
//
// 中间件由外到内：请求日志 → 安全头 → CORS → 限流 → 请求体大小 → 指标 → 认证。
// WebSocket 绕过请求体限制和指标中间件，握手自行校验令牌。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	store := h.infra.Storage

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /cors-test", h.CORSTest)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /openapi.yaml", h.OpenAPI)

	authHandler := auth.NewHandler(store, h.authCfg,
		auth.WithThrottle(h.throttle),
		auth.WithLogger(h.logger),
		auth.WithLoginObserver(h.metrics.RecordLogin),
	)
	authHandler.RegisterRoutes(mux)

	paymentHandler := payment.NewHandler(store,
		payment.WithEventBus(h.infra.EventBus),
		payment.WithLogger(h.logger),
		payment.WithEventObserver(h.metrics.RecordPaymentEvent),
	)
	paymentHandler.RegisterRoutes(mux)

	postHandler := post.NewHandler(store)
	postHandler.RegisterRoutes(mux)

	if h.cfg.DebugRoutesEnabled() {
		log.Printf("[server] debug routes enabled: /payments/test-db, /payments/debug-data")
		diag.NewHandler(store).RegisterRoutes(mux)
	}

	api := chain(mux,
		bodyLimit(h.cfg.Server.BodyLimit),
		h.metrics.MetricsMiddleware,
		auth.Middleware(h.authCfg),
	)

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/payments", h.feed.HandleWebSocket)
	topMux.Handle("/", h.withFrontend(api))

	return chain(topMux,
		requestLogger(h.logger),
		securityHeaders,
		corsMiddleware(h.origins),
		rateLimitMiddleware(h.limiter, h.metrics.RateLimitedTotal.Inc),
	)
}

// withFrontend 非 API 路径交给前端处理器
func (h *Handler) withFrontend(api http.Handler) http.Handler {
	if h.frontend == nil {
		return api
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsBackendPath(r.URL.Path) {
			api.ServeHTTP(w, r)
			return
		}
		h.frontend.ServeHTTP(w, r)
	})
}
