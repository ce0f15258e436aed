package ratelimit

import (
	"net"
	"net/http"
)

// ClientIP 限流键使用的客户端地址
//
// 只取 TCP 对端地址，不信任 X-Forwarded-For（可被客户端伪造）。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
