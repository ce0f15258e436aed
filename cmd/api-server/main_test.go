package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-portal/internal/config"
	"payments-portal/internal/shared/infra"
	"payments-portal/internal/shared/storage/memstore"
)

// ============================================================================
// 静态前端
// ============================================================================

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":           {Data: []byte("<html>app</html>")},
		"favicon.ico":          {Data: []byte("ico")},
		"static/js/main.1a.js": {Data: []byte("console.log(1)")},
	}
}

func TestStaticHandler(t *testing.T) {
	h, err := newStaticHandler(testFS())
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"根路径", http.MethodGet, "/", http.StatusOK, "<html>app</html>"},
		{"客户端路由回退", http.MethodGet, "/employee/dashboard", http.StatusOK, "<html>app</html>"},
		{"静态文件", http.MethodGet, "/static/js/main.1a.js", http.StatusOK, "console.log(1)"},
		{"根目录文件", http.MethodGet, "/favicon.ico", http.StatusOK, "ico"},
		{"缺失的资源", http.MethodGet, "/static/js/missing.js", http.StatusNotFound, ""},
		{"不支持的方法", http.MethodPost, "/", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/js/main.1a.js", nil))
	assert.Contains(t, w.Header().Get("Cache-Control"), "immutable")
}

func TestStaticHandler_MissingIndex(t *testing.T) {
	_, err := newStaticHandler(fstest.MapFS{"app.js": {Data: []byte("x")}})
	assert.Error(t, err)
}

// ============================================================================
// 开发代理
// ============================================================================

func TestDevProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "dev:"+r.URL.Path+":"+r.Host)
	}))
	defer upstream.Close()

	h, err := newDevProxy(upstream.URL)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://portal.local/login", nil))
	assert.Equal(t, "dev:/login:"+upstream.Listener.Addr().String(), w.Body.String())
}

func TestDevProxy_Unavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	h, err := newDevProxy("http://" + addr)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDevProxy_InvalidAddress(t *testing.T) {
	_, err := newDevProxy("localhost:3000")
	assert.Error(t, err)
}

func TestNewFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("built"), 0o644))

	cfg := config.Default()
	fe, err := newFrontend(cfg)
	require.NoError(t, err)
	assert.Nil(t, fe)

	cfg.Server.StaticDir = dir
	fe, err = newFrontend(cfg)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	fe.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customer/dashboard", nil))
	assert.Equal(t, "built", w.Body.String())

	cfg.Server.StaticDir = t.TempDir()
	_, err = newFrontend(cfg)
	assert.Error(t, err, "缺少 index.html")
}

// ============================================================================
// TLS 相关
// ============================================================================

func TestCACertEndpoint(t *testing.T) {
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("-----BEGIN CERTIFICATE-----"), 0o644))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "next")
	})
	h, err := withCACertEndpoint(next, caFile)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ca.pem", nil))
	assert.Equal(t, "application/x-pem-file", w.Header().Get("Content-Type"))
	assert.Equal(t, "-----BEGIN CERTIFICATE-----", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "next", w.Body.String())

	_, err = withCACertEndpoint(next, filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}

func TestTLSErrorFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := newTLSFilteredLogger(&buf)

	logger.Print("http: TLS handshake error from 127.0.0.1:5555: remote error: tls: unknown certificate")
	assert.Empty(t, buf.String())

	logger.Print("http: Accept error: too many open files")
	assert.Contains(t, buf.String(), "Accept error")
}

func TestHTTPSURL(t *testing.T) {
	tests := []struct {
		name      string
		host      string
		uri       string
		localAddr string
		want      string
	}{
		{"Host 带端口", "localhost:5001", "/health", "127.0.0.1:5001", "https://localhost:5001/health"},
		{"Host 无端口补监听端口", "localhost", "/payments/pending?page=2", "127.0.0.1:5001", "https://localhost:5001/payments/pending?page=2"},
		{"443 不补端口", "portal.example.com", "/", "10.0.0.1:443", "https://portal.example.com/"},
		{"IPv6", "[::1]", "/", "[::1]:5001", "https://[::1]:5001/"},
		{"无 Host 用监听地址", "", "/", "127.0.0.1:5001", "https://127.0.0.1:5001/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.uri, nil)
			req.Host = tt.host
			assert.Equal(t, tt.want, httpsURL(req, tt.localAddr))
		})
	}
}

func TestHTTPOnTLSListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "secure")
	}))
	srv.Listener.Close()
	srv.Listener = &httpOnTLSListener{Listener: ln}
	srv.StartTLS()
	defer srv.Close()

	addr := ln.Addr().String()

	t.Run("HTTPS 正常处理", func(t *testing.T) {
		resp, err := srv.Client().Get("https://" + addr + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "secure", string(body))
	})

	t.Run("HTTP 被重定向", func(t *testing.T) {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer conn.Close()

		_, err = io.WriteString(conn, "GET /health HTTP/1.1\r\nHost: localhost\r\n\r\n")
		require.NoError(t, err)

		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
		_, port, _ := net.SplitHostPort(addr)
		assert.Equal(t, "https://localhost:"+port+"/health", resp.Header.Get("Location"))
	})
}

func TestResolveCerts(t *testing.T) {
	t.Run("自动生成", func(t *testing.T) {
		dir := t.TempDir()
		files, err := resolveCerts(config.TLSConfig{Enabled: true, AutoGenerate: true, CertDir: dir})
		require.NoError(t, err)
		assert.FileExists(t, files.CertFile)
		assert.FileExists(t, files.CAFile)

		_, err = tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		assert.NoError(t, err)
	})

	t.Run("显式路径", func(t *testing.T) {
		files, err := resolveCerts(config.TLSConfig{Enabled: true, CertFile: "a.pem", KeyFile: "b.pem"})
		require.NoError(t, err)
		assert.Equal(t, "a.pem", files.CertFile)
	})

	t.Run("缺少路径", func(t *testing.T) {
		_, err := resolveCerts(config.TLSConfig{Enabled: true})
		assert.Error(t, err)
	})
}

// ============================================================================
// 启动与关闭
// ============================================================================

// closeRecorder 记录存储是否被关闭
type closeRecorder struct {
	*memstore.Store
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

// stubInfra 用内存基础设施替换 infra.New，返回可检查关闭状态的存储
func stubInfra(t *testing.T) *closeRecorder {
	t.Helper()
	store := &closeRecorder{Store: memstore.NewStore()}
	orig := newInfra
	newInfra = func(ctx context.Context, cfg *config.Config) (*infra.Infrastructure, error) {
		inf := infra.NewMemoryInfrastructure()
		inf.Storage = store
		return inf, nil
	}
	t.Cleanup(func() { newInfra = orig })
	return store
}

func runConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AdminSignupSecret = "admin-secret"
	cfg.Server.Port = "0"
	cfg.Server.TLS.Enabled = false
	cfg.Server.DevProxy = ""
	cfg.Server.StaticDir = ""
	return cfg
}

func TestRun(t *testing.T) {
	t.Run("启动失败时关闭已建立的连接", func(t *testing.T) {
		store := stubInfra(t)
		cfg := runConfig()
		cfg.Server.TLS = config.TLSConfig{Enabled: true}

		err := run(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TLS setup failed")
		assert.True(t, store.closed)
	})

	t.Run("前端配置错误", func(t *testing.T) {
		store := stubInfra(t)
		cfg := runConfig()
		cfg.Server.DevProxy = "localhost:3000"

		assert.Error(t, run(context.Background(), cfg))
		assert.True(t, store.closed)
	})

	t.Run("取消后优雅退出", func(t *testing.T) {
		store := stubInfra(t)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		assert.NoError(t, run(ctx, runConfig()))
		assert.True(t, store.closed)
	})

	t.Run("基础设施初始化失败", func(t *testing.T) {
		cfg := runConfig()
		cfg.RateLimit.Backend = config.BackendRedis
		cfg.Redis.URL = ""

		err := run(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initialize infrastructure")
	})
}
