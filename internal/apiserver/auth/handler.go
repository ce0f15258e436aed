package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/ratelimit"
	"payments-portal/internal/shared/storage"
	"payments-portal/internal/shared/validation"
	"payments-portal/pkg/logging"
)

// 响应提示
const (
	MsgCredentialsRequired = "Username and password are required"
	MsgAuthFailed          = "Authentication failed"
	MsgAccountDeactivated  = "Account deactivated"
	MsgTooManyAttempts     = "Too many failed login attempts, please try again later"
	MsgUsernameExists      = "Username already exists"
	MsgInvalidAdminSecret  = "Invalid admin secret"
	MsgUserNotFound        = "User not found"
)

// 登录结果（metrics 标签）
const (
	LoginSuccess     = "success"
	LoginFailed      = "failed"
	LoginDeactivated = "deactivated"
	LoginThrottled   = "throttled"
)

// adminPermissions 管理员注册时授予的权限
var adminPermissions = []string{"payments:view_all", "payments:review", "payments:stats"}

// Handler 认证 HTTP 处理器
type Handler struct {
	store    storage.AccountStore
	cfg      Config
	throttle *ratelimit.Throttle
	logger   *logging.Logger
	onLogin  func(role model.Role, result string)
}

// Option Handler 可选项
type Option func(*Handler)

// WithThrottle 启用登录失败退避
func WithThrottle(t *ratelimit.Throttle) Option {
	return func(h *Handler) { h.throttle = t }
}

// WithLogger 审计日志
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithLoginObserver 每次登录结束时回调（用于 metrics）
func WithLoginObserver(fn func(role model.Role, result string)) Option {
	return func(h *Handler) { h.onLogin = fn }
}

// NewHandler 创建认证处理器
func NewHandler(store storage.AccountStore, cfg Config, opts ...Option) *Handler {
	h := &Handler{store: store, cfg: cfg}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.Default("auth")
	}
	return h
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /user/login", h.Login)
	mux.HandleFunc("POST /user/register", h.Register)
	mux.HandleFunc("POST /user/signup", h.Register)
	mux.HandleFunc("POST /user/admin/signup", h.AdminSignup)
	mux.HandleFunc("GET /user/me", h.Me)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type loginRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type adminSignupRequest struct {
	registerRequest
	AdminSecret string `json:"adminSecret"`
}

// UserInfo 登录响应中的用户信息
type UserInfo struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	FullName string     `json:"fullName"`
	Role     model.Role `json:"role"`
}

// LoginResponse 登录成功响应
type LoginResponse struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    UserInfo `json:"user"`
}

// MeResponse GET /user/me 响应
type MeResponse struct {
	Name     string     `json:"name"`
	FullName string     `json:"fullName"`
	Username string     `json:"username"`
	UserID   string     `json:"userId"`
	Role     model.Role `json:"role"`
}

// ============================================================================
// Handlers
// ============================================================================

// Login 登录（客户和员工共用，role 选择账号集合）
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.TrimSpace(req.Name)
	}
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, MsgCredentialsRequired)
		return
	}

	ctx := r.Context()
	key := ratelimit.ClientIP(r) + "|" + strings.ToLower(username)
	if h.throttle != nil {
		wait, err := h.throttle.Check(ctx, key)
		if err != nil {
			log.Printf("[auth.login] throttle check error: %v", err)
		} else if wait > 0 {
			h.tooManyAttempts(w, wait)
			h.observe(model.Role(req.Role), LoginThrottled)
			return
		}
	}

	role, ok := model.ParseRole(req.Role)
	var account *model.Account
	if !ok {
		role = model.Role(req.Role)
	} else {
		var err error
		account, err = h.store.GetAccountByUsername(ctx, role, username)
		if err != nil {
			log.Printf("[auth.login] GetAccountByUsername error: %v", err)
			writeError(w, http.StatusInternalServerError, "Login failed")
			return
		}
	}

	if account == nil {
		CheckPassword(req.Password, DummyHash())
		log.Printf("[auth.login] %s not found in %s", username, role.Collection())
		h.fail(w, r, key, role)
		return
	}

	if !account.Active() {
		log.Printf("[auth.login] %s is deactivated", username)
		h.observe(role, LoginDeactivated)
		writeError(w, http.StatusForbidden, MsgAccountDeactivated)
		return
	}

	if !CheckPassword(req.Password, account.PasswordHash) {
		log.Printf("[auth.login] incorrect password for %s", username)
		h.fail(w, r, key, role)
		return
	}

	token, err := GenerateToken(h.cfg, account)
	if err != nil {
		log.Printf("[auth.login] GenerateToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if h.throttle != nil {
		if err := h.throttle.Succeed(ctx, key); err != nil {
			log.Printf("[auth.login] throttle reset error: %v", err)
		}
	}

	h.observe(role, LoginSuccess)
	h.logger.AuditLog(ctx, "user.login", account.Username, slog.String("role", string(account.Role)))
	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Authentication successful",
		Token:   token,
		User: UserInfo{
			UserID:   account.ID,
			Username: account.Username,
			FullName: account.DisplayName(),
			Role:     account.Role,
		},
	})
}

// fail 记录失败并返回统一提示；超过免费次数后直接返回 429
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, key string, role model.Role) {
	if h.throttle != nil {
		wait, err := h.throttle.Fail(r.Context(), key)
		if err != nil {
			log.Printf("[auth.login] throttle record error: %v", err)
		} else if wait > 0 {
			h.observe(role, LoginThrottled)
			h.tooManyAttempts(w, wait)
			return
		}
	}
	h.observe(role, LoginFailed)
	writeError(w, http.StatusBadRequest, MsgAuthFailed)
}

func (h *Handler) tooManyAttempts(w http.ResponseWriter, wait time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeError(w, http.StatusTooManyRequests, MsgTooManyAttempts)
}

func (h *Handler) observe(role model.Role, result string) {
	if h.onLogin == nil {
		return
	}
	if _, ok := model.ParseRole(string(role)); !ok {
		role = "unknown"
	} else if role == "" {
		role = model.RoleCustomer
	}
	h.onLogin(role, result)
}

// Register 客户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, ok := h.newAccount(w, req, model.RoleCustomer)
	if !ok {
		return
	}
	if !h.create(w, r, account) {
		return
	}

	h.logger.AuditLog(r.Context(), "user.register", account.Username)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Customer registered successfully",
		"userId":  account.ID,
	})
}

// AdminSignup 管理员注册，需要提供与 ADMIN_SIGNUP_SECRET 一致的 adminSecret
func (h *Handler) AdminSignup(w http.ResponseWriter, r *http.Request) {
	var req adminSignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.cfg.AdminSignupSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.AdminSecret), []byte(h.cfg.AdminSignupSecret)) != 1 {
		log.Printf("[auth.admin_signup] rejected secret for %q from %s", req.Username, ratelimit.ClientIP(r))
		writeError(w, http.StatusForbidden, MsgInvalidAdminSecret)
		return
	}

	account, ok := h.newAccount(w, req.registerRequest, model.RoleAdmin)
	if !ok {
		return
	}
	account.Permissions = adminPermissions
	if !h.create(w, r, account) {
		return
	}

	h.logger.AuditLog(r.Context(), "admin.signup", account.Username)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Admin registered successfully",
		"userId":  account.ID,
	})
}

// newAccount 校验注册字段并构造账号
func (h *Handler) newAccount(w http.ResponseWriter, req registerRequest, role model.Role) (*model.Account, bool) {
	in := validation.RegistrationInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		FullName: validation.Sanitize(req.FullName),
		Email:    strings.TrimSpace(req.Email),
	}
	if in.Username == "" || in.Password == "" || in.FullName == "" {
		writeError(w, http.StatusBadRequest, "Username, password, and full name are required")
		return nil, false
	}
	if errs := validation.ValidateRegistration(in); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation failed",
			"errors":  errs,
		})
		return nil, false
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		log.Printf("[auth.register] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return nil, false
	}

	return &model.Account{
		Username:     in.Username,
		PasswordHash: hash,
		FullName:     in.FullName,
		Email:        in.Email,
		Role:         role,
		IsActive:     model.Bool(true),
		CreatedAt:    time.Now().UTC(),
	}, true
}

// create 写入账号，用户名重复返回 400
func (h *Handler) create(w http.ResponseWriter, r *http.Request, account *model.Account) bool {
	existing, err := h.store.GetAccountByUsername(r.Context(), account.Role, account.Username)
	if err != nil {
		log.Printf("[auth.register] GetAccountByUsername error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return false
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, MsgUsernameExists)
		return false
	}

	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, MsgUsernameExists)
			return false
		}
		log.Printf("[auth.register] CreateAccount error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return false
	}
	log.Printf("[auth] %s registered: %s (%s)", account.Role, account.Username, account.ID)
	return true
}

// Me 获取当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, MsgTokenInvalid)
		return
	}

	account, err := h.store.GetAccountByID(r.Context(), claims.Role, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, MsgUserNotFound)
			return
		}
		log.Printf("[auth.me] GetAccountByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		Name:     account.DisplayName(),
		FullName: account.DisplayName(),
		Username: account.Username,
		UserID:   account.ID,
		Role:     claims.Role,
	})
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
