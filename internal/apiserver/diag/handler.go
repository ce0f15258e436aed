// Package diag 开发环境诊断路由
//
// 仅在 server.debug_routes 开启且非 prod 环境时注册，且只允许员工访问。
package diag

import (
	"encoding/json"
	"log"
	"net/http"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
)

// MsgEmployeesOnly 非员工访问诊断路由
const MsgEmployeesOnly = "Employees only"

// Store 诊断路由需要的存储能力
type Store interface {
	storage.AccountStore
	storage.PaymentStore
	storage.DiagnosticsStore
}

// Handler 诊断 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建诊断处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册诊断路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	staff := auth.RequireRole(MsgEmployeesOnly, auth.StaffRoles...)
	mux.HandleFunc("GET /payments/test-db", staff(h.TestDB))
	mux.HandleFunc("GET /payments/debug-data", staff(h.DebugData))
}

// accountSummary 调试输出的账号信息，不含密码哈希
type accountSummary struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email,omitempty"`
	Role     model.Role `json:"role"`
}

// TestDB 数据库连通性
// GET /payments/test-db
func (h *Handler) TestDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		log.Printf("[diag] ping failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	total, err := h.store.CountPayments(r.Context(), storage.PaymentFilter{})
	if err != nil {
		log.Printf("[diag] count failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Database connected successfully",
		"totalPayments": total,
		"database":      h.store.DatabaseName(),
		"collection":    "payments",
	})
}

// DebugData 全部付款和账号摘要
// GET /payments/debug-data
func (h *Handler) DebugData(w http.ResponseWriter, r *http.Request) {
	payments, err := h.store.ListPayments(r.Context(), storage.PaymentFilter{})
	if err != nil {
		log.Printf("[diag] ListPayments error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Debug failed"})
		return
	}

	users := []accountSummary{}
	for _, role := range []model.Role{model.RoleAdmin, model.RoleEmployee, model.RoleCustomer} {
		accounts, err := h.store.ListAccounts(r.Context(), role)
		if err != nil {
			log.Printf("[diag] ListAccounts(%s) error: %v", role, err)
			continue
		}
		for _, a := range accounts {
			users = append(users, accountSummary{ID: a.ID, Username: a.Username, Email: a.Email, Role: role})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalPayments": len(payments),
		"payments":      payments,
		"totalUsers":    len(users),
		"users":         users,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
