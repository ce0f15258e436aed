// Package memstore 基于内存的 PersistentStore 实现
//
// 用于本地开发（storage.driver=memory）和 HTTP 层测试，进程退出即丢失数据。
package memstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
)

// Store 内存存储，所有方法并发安全
type Store struct {
	mu       sync.RWMutex
	accounts map[model.Role]map[string]*model.Account
	payments map[string]*model.Payment
	posts    map[string]*model.Post
	postSeq  []string
}

// NewStore 创建空的内存存储
func NewStore() *Store {
	return &Store{
		accounts: map[model.Role]map[string]*model.Account{
			model.RoleCustomer: {},
			model.RoleEmployee: {},
			model.RoleAdmin:    {},
		},
		payments: make(map[string]*model.Payment),
		posts:    make(map[string]*model.Post),
	}
}

var _ storage.PersistentStore = (*Store)(nil)

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) DatabaseName() string { return "memory" }

// ============================================================================
// AccountStore
// ============================================================================

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.accounts[account.Role]
	if !ok {
		byID = make(map[string]*model.Account)
		s.accounts[account.Role] = byID
	}
	for _, a := range byID {
		if a.Username == account.Username {
			return storage.ErrDuplicate
		}
	}
	if account.ID == "" {
		account.ID = newID()
	}
	if _, exists := byID[account.ID]; exists {
		return storage.ErrDuplicate
	}
	cp := *account
	byID[account.ID] = &cp
	return nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, role model.Role, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts[role] {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetAccountByID(ctx context.Context, role model.Role, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[role][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAccounts(ctx context.Context, role model.Role) ([]*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Account, 0, len(s.accounts[role]))
	for _, a := range s.accounts[role] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ============================================================================
// PaymentStore
// ============================================================================

func (s *Store) CreatePayment(ctx context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.ID == "" {
		payment.ID = newID()
	}
	if _, exists := s.payments[payment.ID]; exists {
		return storage.ErrDuplicate
	}
	for _, p := range s.payments {
		if p.Reference == payment.Reference {
			return storage.ErrDuplicate
		}
	}
	cp := *payment
	s.payments[payment.ID] = &cp
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *Store) ListPayments(ctx context.Context, filter storage.PaymentFilter) ([]*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Payment, 0)
	for _, p := range s.payments {
		if matches(p, filter) {
			out = append(out, clonePayment(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*model.Payment{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CountPayments(ctx context.Context, filter storage.PaymentFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.payments {
		if matches(p, filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus, reviewer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status != from {
		return storage.ErrNotFound
	}
	p.Status = to
	p.ReviewedBy = reviewer
	reviewedAt := at
	p.ReviewedAt = &reviewedAt
	return nil
}

func matches(p *model.Payment, f storage.PaymentFilter) bool {
	if f.CustomerID != "" && p.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

// ============================================================================
// PostStore
// ============================================================================

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID == "" {
		post.ID = newID()
	}
	if _, exists := s.posts[post.ID]; exists {
		return storage.ErrDuplicate
	}
	cp := *post
	s.posts[post.ID] = &cp
	s.postSeq = append(s.postSeq, post.ID)
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPosts 按插入顺序返回
func (s *Store) ListPosts(ctx context.Context) ([]*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Post, 0, len(s.posts))
	for _, id := range s.postSeq {
		if p, ok := s.posts[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdatePost(ctx context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.posts, id)
	for i, pid := range s.postSeq {
		if pid == id {
			s.postSeq = append(s.postSeq[:i], s.postSeq[i+1:]...)
			break
		}
	}
	return nil
}

// newID 24 位十六进制，与 MongoDB ObjectID 字符串长度一致
func newID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
