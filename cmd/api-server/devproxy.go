package main

import (
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// newDevProxy 开发模式：非 API 请求反向代理到前端开发服务器（npm start）
//
//	Browser → https://localhost:5001 (Go)
//	          ├── /user/*, /payments/*, /post*, /ws/*, /health ... → Go
//	          └── /*  → reverse proxy → http://localhost:3000
//
// 分流由 server.WithFrontend 完成。
func newDevProxy(addr string) (http.Handler, error) {
	target, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid dev proxy address: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid dev proxy address %q: scheme and host required", addr)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	// 开发服务器按自身 Host 校验请求（webpack allowedHosts）
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("[dev] proxy error for %s: %v", r.URL.Path, err)
		http.Error(w, "frontend dev server unavailable", http.StatusBadGateway)
	}

	log.Printf("[dev] Reverse proxy: non-API routes → %s", addr)
	return proxy, nil
}
