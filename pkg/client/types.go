package client

import (
	"time"

	"payments-portal/internal/shared/model"
)

// LoginResult POST /user/login 响应
type LoginResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		UserID   string     `json:"userId"`
		Username string     `json:"username"`
		FullName string     `json:"fullName"`
		Role     model.Role `json:"role"`
	} `json:"user"`
}

// RegisterRequest 客户注册
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
}

// AdminSignupRequest 管理员注册
type AdminSignupRequest struct {
	RegisterRequest
	AdminSecret string `json:"adminSecret"`
}

// RegisterResult 注册响应
type RegisterResult struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// Me GET /user/me 响应
type Me struct {
	Name     string     `json:"name"`
	FullName string     `json:"fullName"`
	Username string     `json:"username"`
	UserID   string     `json:"userId"`
	Role     model.Role `json:"role"`
}

// PaymentRequest 提交付款
type PaymentRequest struct {
	SourceAccount   string `json:"sourceAccount"`
	TargetAccount   string `json:"targetAccount"`
	BeneficiaryName string `json:"beneficiaryName"`
	BeneficiaryBank string `json:"beneficiaryBank"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Purpose         string `json:"purpose"`
}

// CreatedPayment POST /payments/create 响应
type CreatedPayment struct {
	Message   string              `json:"message"`
	PaymentID string              `json:"paymentId"`
	Reference string              `json:"reference"`
	Status    model.PaymentStatus `json:"status"`
	Amount    string              `json:"amount"`
	Currency  string              `json:"currency"`
	Timestamp time.Time           `json:"timestamp"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// PaymentList 付款列表；未分页时 Pagination 为 nil
type PaymentList struct {
	Payments   []*model.Payment `json:"payments"`
	Pagination *Pagination      `json:"pagination,omitempty"`
}

// Health GET /health 响应
type Health struct {
	Status         string   `json:"status"`
	Timestamp      string   `json:"timestamp"`
	Secure         bool     `json:"secure"`
	Protocol       string   `json:"protocol"`
	CORS           string   `json:"cors"`
	AllowedOrigins []string `json:"allowedOrigins"`
	Database       string   `json:"database"`
}

// PostInput 创建或更新帖子；更新时为空的字段保持不变
type PostInput struct {
	User    string `json:"user,omitempty"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
}

// messageResponse 只有 message 的响应
type messageResponse struct {
	Message string `json:"message"`
}
