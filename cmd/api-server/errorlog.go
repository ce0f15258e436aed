package main

import (
	"bytes"
	"io"
	"log"
)

// tlsErrorFilter 丢弃 "TLS handshake error" 日志，其余原样写出
//
// 自签名证书模式下浏览器首次连接会产生大量握手失败。
type tlsErrorFilter struct {
	out io.Writer
}

func (f *tlsErrorFilter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("TLS handshake error")) {
		return len(p), nil
	}
	return f.out.Write(p)
}

// newTLSFilteredLogger 用于 http.Server.ErrorLog
func newTLSFilteredLogger(out io.Writer) *log.Logger {
	return log.New(&tlsErrorFilter{out: out}, "[http] ", log.LstdFlags)
}
