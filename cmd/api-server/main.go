// Package main API Server 入口
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payments-portal/internal/apiserver/server"
	"payments-portal/internal/config"
	"payments-portal/internal/shared/infra"
	"payments-portal/internal/tlsutil"
	"payments-portal/pkg/logging"
	"payments-portal/web"
)

// newInfra 测试中可替换
var newInfra = infra.New

func main() {
	// 加载配置（自动加载 .env，APP_ENV 选择 {env}.yaml）
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration:\n%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatalf("API Server: %v", err)
	}
	fmt.Println("Server stopped")
}

// run 启动服务直到 ctx 取消；返回前关闭所有基础设施连接
func run(ctx context.Context, cfg *config.Config) error {
	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "api-server",
	})

	inf, err := newInfra(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize infrastructure: %w", err)
	}
	defer inf.Close()

	opts := []server.Option{server.WithLogger(logger)}
	frontend, err := newFrontend(cfg)
	if err != nil {
		return fmt.Errorf("set up frontend: %w", err)
	}
	if frontend != nil {
		opts = append(opts, server.WithFrontend(frontend))
	}

	h := server.NewHandler(cfg, inf, opts...)
	handler := h.Router()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.Server.TLS.Enabled {
		tlsFiles, err := resolveCerts(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("TLS setup failed: %w", err)
		}
		srv.TLSConfig, err = tlsutil.ServerConfig(tlsFiles.CertFile, tlsFiles.KeyFile)
		if err != nil {
			return fmt.Errorf("TLS setup failed: %w", err)
		}
		if cfg.Server.TLS.AutoGenerate {
			if srv.Handler, err = withCACertEndpoint(handler, tlsFiles.CAFile); err != nil {
				log.Printf("[tls] WARNING: %v", err)
				srv.Handler = handler
			} else {
				log.Printf("[tls] CA cert download available at: %s", caCertPath)
			}
			srv.ErrorLog = newTLSFilteredLogger(os.Stderr)
		}
	}

	// 优雅关闭
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()

		log.Println("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := serve(srv); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	<-stopped
	return nil
}

// serve 启动监听；TLS 模式下同一端口上的纯 HTTP 请求被重定向到 HTTPS
func serve(srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if srv.TLSConfig == nil {
		log.Printf("API Server listening on http://localhost%s", srv.Addr)
		return srv.Serve(ln)
	}

	log.Printf("API Server listening on https://localhost%s (HTTP redirected)", srv.Addr)
	return srv.Serve(tls.NewListener(&httpOnTLSListener{Listener: ln}, srv.TLSConfig))
}

// resolveCerts 确定证书文件：auto_generate 时在 cert_dir 下生成，否则使用配置的路径
func resolveCerts(c config.TLSConfig) (*tlsutil.CertFiles, error) {
	if c.AutoGenerate {
		return tlsutil.EnsureCerts(tlsutil.GenerateOptions{
			Hosts:   c.Hosts,
			CertDir: c.CertDir,
		})
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errors.New("server.tls.cert_file and key_file are required when auto_generate is off")
	}
	return &tlsutil.CertFiles{CertFile: c.CertFile, KeyFile: c.KeyFile}, nil
}

// newFrontend dev_proxy 优先，其次 static_dir，再次嵌入的构建产物，都没有时不托管前端
func newFrontend(cfg *config.Config) (http.Handler, error) {
	switch {
	case cfg.Server.DevProxy != "":
		return newDevProxy(cfg.Server.DevProxy)
	case cfg.Server.StaticDir != "":
		log.Printf("Serving frontend from %s", cfg.Server.StaticDir)
		return newStaticHandler(os.DirFS(cfg.Server.StaticDir))
	case web.IsEmbedded():
		fsys, err := web.StaticFS()
		if err != nil {
			return nil, err
		}
		log.Printf("Serving embedded frontend")
		return newStaticHandler(fsys)
	default:
		return nil, nil
	}
}
