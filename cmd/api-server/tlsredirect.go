package main

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// tlsRecordHandshake TLS 记录层 handshake 类型（ClientHello 首字节）
const tlsRecordHandshake = 0x16

// httpOnTLSListener 在 TLS 端口上识别纯 HTTP 请求并 301 重定向到 HTTPS
//
// 首字节为 TLS handshake 的连接原样交给 TLS 层，其余按 HTTP 处理后关闭。
type httpOnTLSListener struct {
	net.Listener
}

func (l *httpOnTLSListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		first := make([]byte, 1)
		_, err = io.ReadFull(conn, first)
		conn.SetReadDeadline(time.Time{})
		if err != nil {
			conn.Close()
			continue
		}

		if first[0] == tlsRecordHandshake {
			return &prefixConn{Conn: conn, prefix: first}, nil
		}
		go redirectToHTTPS(&prefixConn{Conn: conn, prefix: first})
	}
}

// prefixConn 先返回已读取的字节，再读底层连接
type prefixConn struct {
	net.Conn
	prefix []byte
}

func (c *prefixConn) Read(b []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(b, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

// redirectToHTTPS 读取一个 HTTP 请求并返回 301
func redirectToHTTPS(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}

	resp := &http.Response{
		StatusCode: http.StatusMovedPermanently,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Location":   {httpsURL(req, conn.LocalAddr().String())},
			"Connection": {"close"},
		},
		Close: true,
	}
	resp.Write(conn)
}

// httpsURL 根据请求 Host 和监听地址构造 https 地址
//
// Host 不带端口且监听端口不是 443 时补上监听端口。
func httpsURL(req *http.Request, localAddr string) string {
	host := req.Host
	if host == "" {
		host = localAddr
	}
	if _, port, err := net.SplitHostPort(localAddr); err == nil && port != "443" {
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(strings.Trim(host, "[]"), port)
		}
	}
	return "https://" + host + req.URL.RequestURI()
}
