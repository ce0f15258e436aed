//go:build !embedweb

// Package web 提供前端静态文件的嵌入支持（默认构建）
//
// 默认构建不嵌入前端，由 server.static_dir 或 server.dev_proxy 提供。
package web

import "io/fs"

// StaticFS 未嵌入时返回 nil
func StaticFS() (fs.FS, error) {
	return nil, nil
}

// IsEmbedded 返回 false 表示前端未嵌入
func IsEmbedded() bool {
	return false
}
