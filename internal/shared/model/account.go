// Package model 定义核心数据模型
//
// account.go 包含账号相关的数据模型定义：
//   - Role：账号角色枚举（customer / employee / admin）
//   - Account：客户、员工、管理员账号
//
// 三类账号分别存放在 customers、employees、users 三个集合中，
// 字段一致，通过 Role 区分。
package model

import "time"

// ============================================================================
// Role - 账号角色
// ============================================================================

// Role 账号角色
type Role string

const (
	// RoleCustomer 客户：创建付款请求、查看自己的付款
	RoleCustomer Role = "customer"

	// RoleEmployee 员工：审核付款请求
	RoleEmployee Role = "employee"

	// RoleAdmin 管理员：拥有员工的全部权限
	RoleAdmin Role = "admin"
)

// 账号集合名称
const (
	CollectionCustomers = "customers"
	CollectionEmployees = "employees"
	CollectionUsers     = "users"
)

// ParseRole 解析登录请求中的角色选择，空值默认为 customer
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "":
		return RoleCustomer, true
	case RoleCustomer, RoleEmployee, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Collection 返回该角色账号所在的集合
func (r Role) Collection() string {
	switch r {
	case RoleEmployee:
		return CollectionEmployees
	case RoleAdmin:
		return CollectionUsers
	default:
		return CollectionCustomers
	}
}

// IsStaff 是否为可审核付款的角色
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

// ============================================================================
// Account - 账号
// ============================================================================

// Account 客户 / 员工 / 管理员账号
//
// username 在所属集合内唯一；账号创建后不会被删除。
// isActive 显式为 false 时禁止登录，缺省视为启用（早期客户文档没有该字段）。
type Account struct {
	ID            string    `json:"id" bson:"_id"`
	Username      string    `json:"username" bson:"username"`
	PasswordHash  string    `json:"-" bson:"password"` // never expose in JSON
	FullName      string    `json:"fullName" bson:"fullName"`
	Email         string    `json:"email,omitempty" bson:"email,omitempty"`
	Role          Role      `json:"role" bson:"role"`
	IsActive      *bool     `json:"isActive,omitempty" bson:"isActive,omitempty"`
	AccountNumber string    `json:"accountNumber,omitempty" bson:"accountNumber,omitempty"` // 客户默认付款账户
	Permissions   []string  `json:"permissions,omitempty" bson:"permissions,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// DisplayName 返回展示名称，未设置全名时使用用户名
func (a *Account) DisplayName() string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Username
}

// Active 账号是否允许登录
func (a *Account) Active() bool {
	return a.IsActive == nil || *a.IsActive
}

// Bool 返回 b 的指针
func Bool(b bool) *bool {
	return &b
}
