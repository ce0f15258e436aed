// Package client 付款门户 API 客户端
//
// 封装全部 REST 接口：令牌在 Login 后自动保存并附加到后续请求，
// 服务端返回的 message 原样放进 *APIError。提交付款前按服务端同样的规则做本地校验。
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/validation"
	"payments-portal/internal/tlsutil"
)

// DefaultBaseURL 本地开发服务地址
const DefaultBaseURL = "https://localhost:5001"

// DefaultTimeout 单个请求超时
const DefaultTimeout = 10 * time.Second

// Config 客户端配置
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	CAFile             string // 自签名 CA（/ca.pem 下载的文件）
	InsecureSkipVerify bool   // 仅开发环境
	Token              string
	HTTPClient         *http.Client // 非空时忽略 Timeout/CAFile/InsecureSkipVerify
}

// Client API 客户端，并发安全
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string      // 字段校验错误
	RetryAfter time.Duration // 429 时服务端要求的等待时间
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.StatusCode, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// ValidationError 本地校验失败，请求未发送
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// IsStatus 判断 err 是否为指定状态码的 APIError
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// New 创建客户端
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.CAFile != "" || cfg.InsecureSkipVerify {
			tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.InsecureSkipVerify}
			if cfg.CAFile != "" {
				pool, err := tlsutil.CAPool(cfg.CAFile)
				if err != nil {
					return nil, err
				}
				tlsCfg.RootCAs = pool
			}
			transport.TLSClientConfig = tlsCfg
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	return &Client{baseURL: base, httpClient: httpClient, token: cfg.Token}, nil
}

// SetToken 设置后续请求使用的令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token 当前令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do 发送请求；out 非 nil 时解码 2xx 响应体
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
		apiErr.Errors = body.Errors
	} else if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		apiErr.Message = text
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// ============================================================================
// 认证
// ============================================================================

// Login 登录并保存令牌；role 为空时按客户登录
func (c *Client) Login(ctx context.Context, username, password string, role model.Role) (*LoginResult, error) {
	if role == "" {
		role = model.RoleCustomer
	}
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/user/login", map[string]string{
		"username": username,
		"password": password,
		"role":     string(role),
	}, &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Logout 清除本地令牌（服务端无状态）
func (c *Client) Logout() {
	c.SetToken("")
}

// Register 客户注册
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if errs := validation.ValidateRegistration(registrationInput(req)); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	var out RegisterResult
	if err := c.do(ctx, http.MethodPost, "/user/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminSignup 管理员注册
func (c *Client) AdminSignup(ctx context.Context, req AdminSignupRequest) (*RegisterResult, error) {
	if errs := validation.ValidateRegistration(registrationInput(req.RegisterRequest)); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	var out RegisterResult
	if err := c.do(ctx, http.MethodPost, "/user/admin/signup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func registrationInput(req RegisterRequest) validation.RegistrationInput {
	return validation.RegistrationInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		FullName: req.FullName,
		Email:    strings.TrimSpace(req.Email),
	}
}

// Me 当前用户
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.do(ctx, http.MethodGet, "/user/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// 付款
// ============================================================================

// CreatePayment 客户提交付款，本地校验失败时返回 *ValidationError
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*CreatedPayment, error) {
	req = PaymentRequest{
		SourceAccount:   validation.Sanitize(req.SourceAccount),
		TargetAccount:   validation.Sanitize(req.TargetAccount),
		BeneficiaryName: validation.Sanitize(req.BeneficiaryName),
		BeneficiaryBank: validation.Sanitize(req.BeneficiaryBank),
		Amount:          validation.Sanitize(req.Amount),
		Currency:        validation.Sanitize(req.Currency),
		Purpose:         validation.Sanitize(req.Purpose),
	}
	errs := validation.ValidatePayment(validation.PaymentInput(req))
	if len(errs) == 0 {
		if msg := validation.CheckAmountBounds(req.Amount); msg != "" {
			errs = append(errs, msg)
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	var out CreatedPayment
	if err := c.do(ctx, http.MethodPost, "/payments/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyPayments 客户自己的付款（新到旧）
func (c *Client) MyPayments(ctx context.Context) ([]*model.Payment, error) {
	return c.listPayments(ctx, "/payments/my-payments")
}

// History 分页查询客户自己的付款；page、limit 为 0 时不分页
func (c *Client) History(ctx context.Context, page, limit int) (*PaymentList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/payments/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out PaymentList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingPayments 员工：待审核付款
func (c *Client) PendingPayments(ctx context.Context) ([]*model.Payment, error) {
	return c.listPayments(ctx, "/payments/pending")
}

// AllPayments 员工：全部付款
func (c *Client) AllPayments(ctx context.Context) ([]*model.Payment, error) {
	return c.listPayments(ctx, "/payments/all")
}

func (c *Client) listPayments(ctx context.Context, path string) ([]*model.Payment, error) {
	var out PaymentList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Payments == nil {
		out.Payments = []*model.Payment{}
	}
	return out.Payments, nil
}

// UpdateStatus 员工审核，返回服务端提示
func (c *Client) UpdateStatus(ctx context.Context, paymentID string, status model.PaymentStatus) (string, error) {
	if paymentID == "" {
		return "", errors.New("payment id is required")
	}
	var out messageResponse
	path := "/payments/" + url.PathEscape(paymentID) + "/status"
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"status": string(status)}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Approve 批准付款
func (c *Client) Approve(ctx context.Context, paymentID string) (string, error) {
	return c.UpdateStatus(ctx, paymentID, model.PaymentStatusApproved)
}

// Reject 拒绝付款
func (c *Client) Reject(ctx context.Context, paymentID string) (string, error) {
	return c.UpdateStatus(ctx, paymentID, model.PaymentStatusRejected)
}

// Stats 员工看板统计
func (c *Client) Stats(ctx context.Context) (*model.PaymentStats, error) {
	var out model.PaymentStats
	if err := c.do(ctx, http.MethodGet, "/payments/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// 帖子 & 健康检查
// ============================================================================

// ListPosts 全部帖子
func (c *Client) ListPosts(ctx context.Context) ([]*model.Post, error) {
	var out []*model.Post
	if err := c.do(ctx, http.MethodGet, "/post", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPost 单个帖子
func (c *Client) GetPost(ctx context.Context, id string) (*model.Post, error) {
	var out model.Post
	if err := c.do(ctx, http.MethodGet, "/post/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost 发帖
func (c *Client) CreatePost(ctx context.Context, in PostInput) (*model.Post, error) {
	var out model.Post
	if err := c.do(ctx, http.MethodPost, "/post/upload", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePost 部分更新帖子
func (c *Client) UpdatePost(ctx context.Context, id string, in PostInput) (*model.Post, error) {
	var out model.Post
	if err := c.do(ctx, http.MethodPatch, "/post/"+url.PathEscape(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePost 删除帖子
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/post/"+url.PathEscape(id), nil, nil)
}

// Health 服务健康状态；数据库不可达时服务端返回 503，这里作为 *APIError 返回
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// 轮询
// ============================================================================

// 看板刷新间隔
const (
	CustomerPollInterval = 15 * time.Second
	EmployeePollInterval = 2 * time.Minute
)

// Poll 立即执行一次 fn，之后每隔 interval 执行，直到 ctx 取消或 fn 返回错误
//
// ctx 取消时返回 nil。
func Poll(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
