package server

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payments-portal/internal/shared/ratelimit"
	"payments-portal/pkg/logging"
)

// MsgTooManyRequests 全局限流提示
const MsgTooManyRequests = "Too many requests from this IP"

// MsgBodyTooLarge 请求体超限提示
const MsgBodyTooLarge = "Request entity too large"

// DefaultBodyLimit 请求体默认上限 10MB
const DefaultBodyLimit int64 = 10 << 20

// statusRecorder 包装 http.ResponseWriter 以捕获状态码
//
// 保留 Hijacker / Flusher，WebSocket 握手和流式响应经过中间件后仍可用。
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// ============================================================================
// 请求 ID + 访问日志
// ============================================================================

// requestLogger 生成请求 ID 并在请求结束后输出访问日志
//
// 客户端带了 X-Request-ID 时沿用，便于跨服务追踪。
func requestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(logging.RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = logging.NewRequestID()
			}
			w.Header().Set(logging.RequestIDHeader, id)

			ctx := logging.WithRequestID(r.Context(), id)
			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			logger.HTTPRequestLog(ctx, r.Method, r.URL.Path, wrapped.status, time.Since(start), ratelimit.ClientIP(r))
		})
	}
}

// ============================================================================
// 安全响应头
// ============================================================================

const contentSecurityPolicy = "default-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"script-src 'self'; img-src 'self' data: https:"

// securityHeaders 设置浏览器安全相关响应头
//
// HSTS 只在 HTTPS 连接上发送。
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// CORS
// ============================================================================

// originSet 跨域白名单
type originSet map[string]bool

func newOriginSet(origins []string) originSet {
	set := make(originSet, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			set[o] = true
		}
	}
	return set
}

// allows 没有 Origin 头的请求（curl、服务端调用）不受跨域限制
func (s originSet) allows(origin string) bool {
	return origin == "" || s[origin]
}

// corsMiddleware 按白名单回显 Origin，允许携带凭据
//
// 不在白名单内的 Origin 不返回 CORS 头，由浏览器拒绝；预检请求统一 200。
func corsMiddleware(origins originSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")
			if origin != "" && origins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			} else if origin != "" {
				log.Printf("[cors] origin not allowed: %s", origin)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// 全局限流
// ============================================================================

// rateLimitMiddleware 按客户端 IP 固定窗口限流
//
// 计数存储出错时放行。
func rateLimitMiddleware(limiter *ratelimit.Limiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), ratelimit.ClientIP(r))
			if err != nil {
				log.Printf("[ratelimit] store error: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			resetSecs := int64(d.ResetIn.Round(time.Second) / time.Second)
			w.Header().Set("RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			w.Header().Set("RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			w.Header().Set("RateLimit-Reset", strconv.FormatInt(resetSecs, 10))

			if !d.Allowed {
				if onLimited != nil {
					onLimited()
				}
				w.Header().Set("Retry-After", strconv.FormatInt(resetSecs, 10))
				writeError(w, http.StatusTooManyRequests, MsgTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// 请求体大小
// ============================================================================

// bodyLimit 限制请求体大小
//
// Content-Length 已知超限时直接 413；未知长度的请求由 MaxBytesReader 截断，
// 处理器解码失败时按无效请求体返回 400。
func bodyLimit(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// chain 按书写顺序由外到内组合中间件
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
