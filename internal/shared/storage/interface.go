// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（MongoDB）、memstore/（内存）
//   - 启动时显式构造并注入，关闭时调用 Close
package storage

import (
	"context"
	"time"

	"payments-portal/internal/shared/model"
)

// AccountStore 账号存储（customers / employees / users 三个集合）
//
// GetAccountByUsername 未找到时返回 (nil, nil)，
// GetAccountByID 未找到时返回 ErrNotFound。
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByUsername(ctx context.Context, role model.Role, username string) (*model.Account, error)
	GetAccountByID(ctx context.Context, role model.Role, id string) (*model.Account, error)
	ListAccounts(ctx context.Context, role model.Role) ([]*model.Account, error)
}

// PaymentFilter 付款查询条件，零值字段不参与过滤
type PaymentFilter struct {
	CustomerID string
	Status     model.PaymentStatus
	Limit      int
	Offset     int
}

// PaymentStore 付款请求存储
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	// ListPayments 按 createdAt 倒序返回
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*model.Payment, error)
	CountPayments(ctx context.Context, filter PaymentFilter) (int64, error)
	// UpdatePaymentStatus 条件更新：仅当当前状态为 from 时写入 to，未命中返回 ErrNotFound
	UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus, reviewer string, at time.Time) error
}

// PostStore 演示帖子存储
type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context) ([]*model.Post, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id string) error
}

// DiagnosticsStore 诊断信息（仅开发环境调试路由使用）
type DiagnosticsStore interface {
	Ping(ctx context.Context) error
	DatabaseName() string
}

// PersistentStore 组合接口
type PersistentStore interface {
	AccountStore
	PaymentStore
	PostStore
	DiagnosticsStore
	Close() error
}
