package auth

import (
	"log"
	"net/http"
	"strings"

	"payments-portal/internal/shared/model"
	"payments-portal/pkg/logging"
)

// MsgTokenInvalid 所有令牌校验失败统一返回的提示
const MsgTokenInvalid = "token invalid"

// 需要走认证判断的 API 前缀，其余路径（静态资源）直接放行
var apiPrefixes = []string{
	"/user/",
	"/payments/",
	"/post",
	"/ws/",
}

// 免认证路由精确匹配
var publicExact = map[string]bool{
	"POST /user/login":        true,
	"POST /user/register":     true,
	"POST /user/signup":       true,
	"POST /user/admin/signup": true,
	"GET /health":             true,
	"GET /cors-test":          true,
	"GET /metrics":            true,
	"GET /post":               true,
}

func isAPIPath(path string) bool {
	for _, prefix := range apiPrefixes {
		if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}

func isPublicRoute(method, path string) bool {
	if method == http.MethodOptions {
		return true
	}
	if publicExact[method+" "+path] {
		return true
	}
	// 帖子读取公开
	if method == http.MethodGet && strings.HasPrefix(path, "/post/") {
		return true
	}
	// WebSocket 握手自行校验 token（浏览器无法设置 Authorization 头）
	if strings.HasPrefix(path, "/ws/") {
		return true
	}
	return false
}

// BearerToken 提取 Authorization: Bearer <token>
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Middleware 创建 JWT 认证中间件
//
// 公开路由和非 API 路径直接放行；其余请求必须携带有效 Bearer Token，
// 否则返回 401 token invalid。
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAPIPath(r.URL.Path) || isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, MsgTokenInvalid)
				return
			}

			claims, err := ParseToken(cfg, token)
			if err != nil {
				log.Printf("[auth] token rejected for %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, MsgTokenInvalid)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = logging.WithUser(ctx, claims.UserID, string(claims.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffRoles 员工路由允许的角色
var StaffRoles = []model.Role{model.RoleEmployee, model.RoleAdmin}

// RequireRole 角色校验，不匹配时返回 403 与给定提示
func RequireRole(message string, roles ...model.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, MsgTokenInvalid)
				return
			}
			if !claims.HasRole(roles...) {
				log.Printf("[auth] %s (%s) denied %s %s", claims.Username, claims.Role, r.Method, r.URL.Path)
				writeError(w, http.StatusForbidden, message)
				return
			}
			next(w, r)
		}
	}
}
