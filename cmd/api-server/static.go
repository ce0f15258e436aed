package main

import (
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// newStaticHandler 托管前端构建产物（React build 目录）
//
// 优先级：
//  1. 静态文件匹配 → FileServer
//  2. 兜底 → 直接返回 index.html（SPA 客户端路由接管）
//
// API 路径的分流在 server.WithFrontend 中完成，这里只处理前端路径。
// 兜底不能使用 http.FileServer：它对 /index.html 会 301 重定向到 ./，
// 非根路径会产生重定向循环。
func newStaticHandler(staticFS fs.FS) (http.Handler, error) {
	fileServer := http.FileServer(http.FS(staticFS))

	indexHTML, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return nil, fmt.Errorf("read index.html: %w", err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		cleanPath := path.Clean(r.URL.Path)
		if cleanPath != "/" && fileExists(staticFS, cleanPath) {
			// 带哈希的构建产物可以长期缓存
			if strings.HasPrefix(cleanPath, "/static/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		// 缺失的静态资源返回 404，避免把 index.html 当成 JS 返回
		if path.Ext(cleanPath) != "" && cleanPath != "/index.html" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(indexHTML)
		}
	}), nil
}

// fileExists 文件存在且不是目录
func fileExists(fsys fs.FS, filePath string) bool {
	cleanPath := strings.TrimPrefix(filePath, "/")
	if cleanPath == "" {
		return false
	}
	stat, err := fs.Stat(fsys, cleanPath)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}
