//go:build embedweb

// Package web 提供前端静态文件的嵌入支持（发布构建）
//
// 使用 Go embed 将 React 构建产物 build/ 目录嵌入二进制。
// 构建前需要先执行：cd web && npm run build，然后 go build -tags embedweb ./cmd/api-server
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:build
var staticFiles embed.FS

// StaticFS 返回前端静态文件的文件系统，以 build/ 为根目录
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFiles, "build")
}

// IsEmbedded 返回 true 表示前端已嵌入
func IsEmbedded() bool {
	return true
}
