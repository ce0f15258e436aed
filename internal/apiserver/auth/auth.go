// Package auth 用户认证：JWT 令牌管理、密码哈希、HTTP 中间件
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"payments-portal/internal/shared/model"
)

// contextKey context 键类型
type contextKey string

const ctxKeyClaims contextKey = "auth_claims"

// bcryptCost 密码哈希成本
const bcryptCost = 12

// Config 认证配置
type Config struct {
	JWTSecret         string
	AdminSignupSecret string
	TokenTTL          time.Duration
}

// DefaultTokenTTL 令牌默认有效期
const DefaultTokenTTL = 24 * time.Hour

func (c Config) ttl() time.Duration {
	if c.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return c.TokenTTL
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(bytes), err
}

// CheckPassword 验证密码（bcrypt 比较本身是常量时间的）
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// DummyHash 与真实哈希同成本的随机哈希
//
// 用户不存在时对它做一次比较，使“用户不存在”和“密码错误”耗时一致。
func DummyHash() string {
	dummyHashOnce.Do(func() {
		b := make([]byte, 16)
		_, _ = rand.Read(b)
		h, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(b)), bcryptCost)
		if err != nil {
			panic(fmt.Sprintf("auth: generate dummy hash: %v", err))
		}
		dummyHash = string(h)
	})
	return dummyHash
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	UserID      string     `json:"userId"`
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
	FullName    string     `json:"fullName,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

// HasRole 是否属于给定角色之一
func (c *Claims) HasRole(roles ...model.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// GenerateToken 为账号签发访问令牌
func GenerateToken(cfg Config, account *model.Account) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("auth: JWT secret not configured")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
		},
		UserID:      account.ID,
		Username:    account.Username,
		Role:        account.Role,
		FullName:    account.DisplayName(),
		Permissions: account.Permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT（签名、过期时间、签名算法）
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if _, ok := model.ParseRole(string(claims.Role)); !ok || claims.Role == "" {
		return nil, fmt.Errorf("invalid role %q", claims.Role)
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithClaims 将令牌声明注入 context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFrom 从 context 获取令牌声明，未认证时返回 nil
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return c
}
