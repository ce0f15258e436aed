package mongostore

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
	"payments-portal/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := NewStore(ctx, uri, "customer_payments_test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	// 清空测试数据库
	bg := context.Background()
	require.NoError(t, s.db.Drop(bg))
	require.NoError(t, s.ensureIndexes(bg))

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})

	return s
}

// Compile-time interface check
var _ storage.PersistentStore = (*Store)(nil)

func TestAccountCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	acc := &model.Account{
		Username:     "john_doe",
		PasswordHash: "hash",
		FullName:     "John Doe",
		Role:         model.RoleCustomer,
		IsActive:     model.Bool(true),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NotEmpty(t, acc.ID)

	// 同一集合内用户名唯一
	dup := *acc
	dup.ID = ""
	assert.ErrorIs(t, s.CreateAccount(ctx, &dup), storage.ErrDuplicate)

	// 不同集合可以重名
	emp := &model.Account{Username: "john_doe", Role: model.RoleEmployee, IsActive: model.Bool(true), CreatedAt: time.Now()}
	require.NoError(t, s.CreateAccount(ctx, emp))

	got, err := s.GetAccountByUsername(ctx, model.RoleCustomer, "john_doe")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	missing, err := s.GetAccountByUsername(ctx, model.RoleCustomer, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := s.GetAccountByID(ctx, model.RoleCustomer, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", byID.FullName)

	_, err = s.GetAccountByID(ctx, model.RoleEmployee, acc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListAccounts(ctx, model.RoleEmployee)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPaymentLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, ref := range []string{"PAY-1", "PAY-2", "PAY-3"} {
		p := &model.Payment{
			CustomerID: "cust-1",
			Amount:     "100.00",
			Currency:   "USD",
			Status:     model.PaymentStatusPending,
			Reference:  ref,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.CreatePayment(ctx, p))
	}
	other := &model.Payment{CustomerID: "cust-2", Status: model.PaymentStatusPending, Reference: "PAY-4", CreatedAt: base}
	require.NoError(t, s.CreatePayment(ctx, other))

	// 倒序
	mine, err := s.ListPayments(ctx, storage.PaymentFilter{CustomerID: "cust-1"})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "PAY-3", mine[0].Reference)
	assert.Equal(t, "PAY-1", mine[2].Reference)

	page, err := s.ListPayments(ctx, storage.PaymentFilter{CustomerID: "cust-1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "PAY-1", page[0].Reference)

	// 审核
	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpdatePaymentStatus(ctx, mine[0].ID, model.PaymentStatusPending, model.PaymentStatusApproved, "alice", at))

	got, err := s.GetPayment(ctx, mine[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusApproved, got.Status)
	assert.Equal(t, "alice", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	// 已审核的付款不能再次审核
	err = s.UpdatePaymentStatus(ctx, mine[0].ID, model.PaymentStatusPending, model.PaymentStatusRejected, "bob", at)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.UpdatePaymentStatus(ctx, "nonexistent", model.PaymentStatusPending, model.PaymentStatusApproved, "bob", at)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pending, err := s.CountPayments(ctx, storage.PaymentFilter{Status: model.PaymentStatusPending})
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	total, err := s.CountPayments(ctx, storage.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

// 并发审核同一笔付款：条件更新保证只有一个成功
func TestUpdatePaymentStatus_ConcurrentReview(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := &model.Payment{CustomerID: "cust-1", Status: model.PaymentStatusPending, Reference: "PAY-RACE", CreatedAt: time.Now()}
	require.NoError(t, s.CreatePayment(ctx, p))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, to := range []model.PaymentStatus{model.PaymentStatusApproved, model.PaymentStatusRejected} {
		wg.Add(1)
		go func(i int, to model.PaymentStatus) {
			defer wg.Done()
			results[i] = s.UpdatePaymentStatus(ctx, p.ID, model.PaymentStatusPending, to, "emp", time.Now())
		}(i, to)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// 旧服务写入的文档 _id 为 ObjectID
func TestLegacyObjectIDPayment(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	oid := bson.NewObjectID()
	_, err := s.col(ColPayments).InsertOne(ctx, bson.D{
		{Key: "_id", Value: oid},
		{Key: "customerId", Value: "cust-legacy"},
		{Key: "amount", Value: "250.00"},
		{Key: "currency", Value: "EUR"},
		{Key: "status", Value: "pending"},
		{Key: "reference", Value: "PAY-LEGACY"},
		{Key: "createdAt", Value: time.Now()},
	})
	require.NoError(t, err)

	got, err := s.GetPayment(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), got.ID)
	assert.Equal(t, "PAY-LEGACY", got.Reference)

	require.NoError(t, s.UpdatePaymentStatus(ctx, oid.Hex(), model.PaymentStatusPending, model.PaymentStatusRejected, "alice", time.Now()))

	got, err = s.GetPayment(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRejected, got.Status)
}

func TestPostCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	post := &model.Post{User: "john", Content: "hello", Image: "img.png"}
	require.NoError(t, s.CreatePost(ctx, post))

	post.Content = "updated"
	require.NoError(t, s.UpdatePost(ctx, post))

	got, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)

	list, err := s.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePost(ctx, post.ID))
	_, err = s.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeletePost(ctx, post.ID), storage.ErrNotFound)
}

func TestPingAndName(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "customer_payments_test", s.DatabaseName())
}

func TestQueryLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var buf bytes.Buffer
	s.SetLogger(logging.NewWithWriter(logging.Config{Level: "debug", Format: "json"}, &buf))

	_, err := s.ListPayments(ctx, storage.PaymentFilter{})
	require.NoError(t, err)
	err = s.UpdatePaymentStatus(ctx, bson.NewObjectID().Hex(), model.PaymentStatusPending, model.PaymentStatusApproved, "alice", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var entries []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		entries = append(entries, m)
	}
	require.Len(t, entries, 2)

	assert.Equal(t, "find", entries[0]["operation"])
	assert.Equal(t, ColPayments, entries[0]["collection"])
	assert.Contains(t, entries[0], "duration_ms")

	// 条件更新未命中不是查询失败
	assert.Equal(t, "update", entries[1]["operation"])
	assert.Equal(t, "DEBUG", entries[1]["level"])
	assert.NotContains(t, entries[1], "error")
}
