// Package main portalctl 付款门户命令行客户端
//
// 客户与员工看板的命令行版本：登录、提交付款、审核、统计、轮询，
// 以及直接写库的演示账号初始化（seed）。
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"payments-portal/pkg/client"
)

var Version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app 全局参数与输出
type app struct {
	out io.Writer

	server    string
	token     string
	tokenFile string
	caFile    string
	insecure  bool
	timeout   time.Duration
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Command-line client for the customer payments portal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.server, "server", "s", envOr("PORTAL_URL", client.DefaultBaseURL), "API server base URL")
	flags.StringVar(&a.token, "token", os.Getenv("PORTAL_TOKEN"), "bearer token (overrides the saved token)")
	flags.StringVar(&a.tokenFile, "token-file", defaultTokenFile(), "file where login stores the token")
	flags.StringVar(&a.caFile, "ca-file", os.Getenv("PORTAL_CA_FILE"), "CA certificate for self-signed servers")
	flags.BoolVarP(&a.insecure, "insecure", "k", false, "skip TLS certificate verification")
	flags.DurationVar(&a.timeout, "timeout", client.DefaultTimeout, "request timeout")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.registerCmd(),
		a.meCmd(),
		a.healthCmd(),
		a.payCmd(),
		a.paymentsCmd(),
		a.pendingCmd(),
		a.allCmd(),
		a.reviewCmd("approve", "Approve a pending payment"),
		a.reviewCmd("reject", "Reject a pending payment"),
		a.statsCmd(),
		a.watchCmd(),
		seedCmd(out),
	)
	return root
}

// client 按全局参数构造 API 客户端；未显式给出 token 时读取 login 保存的令牌
func (a *app) client() (*client.Client, error) {
	token := a.token
	if token == "" {
		token = a.savedToken()
	}
	return client.New(client.Config{
		BaseURL:            a.server,
		Timeout:            a.timeout,
		CAFile:             a.caFile,
		InsecureSkipVerify: a.insecure,
		Token:              token,
	})
}

// authedClient 需要登录态的命令使用
func (a *app) authedClient() (*client.Client, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	if c.Token() == "" {
		return nil, errors.New("not logged in: run 'portalctl login' or pass --token")
	}
	return c, nil
}

func (a *app) savedToken() string {
	if a.tokenFile == "" {
		return ""
	}
	data, err := os.ReadFile(a.tokenFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (a *app) saveToken(token string) error {
	if a.tokenFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(a.tokenFile, []byte(token+"\n"), 0o600)
}

func defaultTokenFile() string {
	if v := os.Getenv("PORTAL_TOKEN_FILE"); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "portalctl", "token")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
