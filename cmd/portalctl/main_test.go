package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/apiserver/server"
	"payments-portal/internal/config"
	"payments-portal/internal/shared/infra"
	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
	"payments-portal/internal/shared/storage/memstore"
	"payments-portal/pkg/logging"
)

// ============================================================================
// 测试辅助
// ============================================================================

type testPortal struct {
	srv   *httptest.Server
	infra *infra.Infrastructure
	dir   string
}

// newTestPortal 启动内存存储的完整 API 服务并写入演示账号
func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "portalctl-test-secret"
	cfg.Auth.AdminSignupSecret = "admin-secret"

	inf := infra.NewMemoryInfrastructure()
	_, err := seed(context.Background(), inf.Storage, io.Discard)
	require.NoError(t, err)

	h := server.NewHandler(cfg, inf, server.WithLogger(logging.NewWithWriter(logging.Config{}, io.Discard)))
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		inf.Close()
	})
	return &testPortal{srv: srv, infra: inf, dir: t.TempDir()}
}

// run 以指定令牌文件执行命令，返回输出
func (p *testPortal) run(t *testing.T, session string, args ...string) (string, error) {
	t.Helper()
	return p.runContext(context.Background(), t, session, args...)
}

func (p *testPortal) runContext(ctx context.Context, t *testing.T, session string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{
		"--server", p.srv.URL,
		"--token-file", filepath.Join(p.dir, session+".token"),
	}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func payArgs(amount string) []string {
	return []string{
		"pay",
		"--from", "ACC123456789",
		"--to", "GB29NWBK60161331926819",
		"--beneficiary", "Jane Smith",
		"--swift", "BOFAUS3N",
		"--amount", amount,
		"--currency", "USD",
		"--purpose", "Invoice 42",
	}
}

// ============================================================================
// seed
// ============================================================================

func TestSeed(t *testing.T) {
	store := memstore.NewStore()
	ctx := context.Background()

	var out bytes.Buffer
	created, err := seed(ctx, store, &out)
	require.NoError(t, err)
	assert.Equal(t, len(demoAccounts), created)
	assert.Contains(t, out.String(), "create alice")

	t.Run("员工与客户分别入库", func(t *testing.T) {
		employees, err := store.ListAccounts(ctx, model.RoleEmployee)
		require.NoError(t, err)
		assert.Len(t, employees, 4)

		john, err := store.GetAccountByUsername(ctx, model.RoleCustomer, "john_doe")
		require.NoError(t, err)
		require.NotNil(t, john)
		assert.Equal(t, "ACC123456789", john.AccountNumber)
		assert.True(t, john.Active())
		assert.True(t, auth.CheckPassword("password123", john.PasswordHash))
	})

	t.Run("重复执行跳过已存在账号", func(t *testing.T) {
		out.Reset()
		created, err := seed(ctx, store, &out)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Equal(t, len(demoAccounts), strings.Count(out.String(), "skip"))
	})
}

func TestSeedCmd_RequiresMongo(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("MONGO_URI", "")
	t.Setenv("ATLAS_URL", "")

	cmd := newRootCmd(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"seed"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a MongoDB database")
}

// ============================================================================
// 命令
// ============================================================================

func TestCLI_CustomerAndEmployeeFlow(t *testing.T) {
	p := newTestPortal(t)

	out, err := p.run(t, "john", "login", "john_doe", "-p", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as john_doe (customer)")

	out, err = p.run(t, "john", "me")
	require.NoError(t, err)
	assert.Contains(t, out, "john_doe")

	out, err = p.run(t, "john", payArgs("250.00")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Reference: PAY-")

	out, err = p.run(t, "john", "payments")
	require.NoError(t, err)
	assert.Contains(t, out, "250.00 USD")
	assert.Contains(t, out, "pending")

	out, err = p.run(t, "john", "payments", "--page", "1", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1/1 (1 total)")

	// 客户不能审核
	_, err = p.run(t, "john", "pending")
	require.Error(t, err)

	_, err = p.run(t, "alice", "login", "alice", "-p", "StrongPass@123", "-r", "employee")
	require.NoError(t, err)

	out, err = p.run(t, "alice", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "john_doe")

	payments, err := p.infra.Storage.ListPayments(context.Background(), storage.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, payments, 1)

	out, err = p.run(t, "alice", "approve", payments[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Payment approved successfully")

	_, err = p.run(t, "alice", "reject", payments[0].ID)
	require.Error(t, err, "已审核的付款不能再次审核")

	out, err = p.run(t, "alice", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Approved:  1")

	out, err = p.run(t, "alice", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "approved")

	out, err = p.run(t, "alice", "logout")
	require.NoError(t, err)
	_, err = p.run(t, "alice", "me")
	assert.ErrorContains(t, err, "not logged in")
}

func TestCLI_Errors(t *testing.T) {
	p := newTestPortal(t)

	t.Run("未登录", func(t *testing.T) {
		_, err := p.run(t, "none", "payments")
		assert.ErrorContains(t, err, "not logged in")
	})

	t.Run("角色无效", func(t *testing.T) {
		_, err := p.run(t, "x", "login", "john_doe", "-p", "password123", "-r", "root")
		assert.ErrorContains(t, err, "invalid role")
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := p.run(t, "x", "login", "john_doe", "-p", "wrong")
		assert.ErrorContains(t, err, auth.MsgAuthFailed)
	})

	t.Run("本地校验逐条输出", func(t *testing.T) {
		_, err := p.run(t, "john", "login", "john_doe", "-p", "password123")
		require.NoError(t, err)

		out, err := p.run(t, "john", payArgs("5")...)
		require.Error(t, err)
		assert.Contains(t, out, "  - Minimum payment amount is 10")
	})

	t.Run("缺少必填参数", func(t *testing.T) {
		_, err := p.run(t, "john", "pay", "--amount", "20")
		assert.Error(t, err)
	})
}

func TestCLI_Register(t *testing.T) {
	p := newTestPortal(t)

	out, err := p.run(t, "new", "register", "new_customer", "-p", testStrongPassword, "--full-name", "New Customer")
	require.NoError(t, err)
	assert.Contains(t, out, "id ")

	_, err = p.run(t, "new", "login", "new_customer", "-p", testStrongPassword)
	assert.NoError(t, err)
}

const testStrongPassword = "StrongPass@123"

func TestCLI_Watch(t *testing.T) {
	p := newTestPortal(t)
	_, err := p.run(t, "john", "login", "john_doe", "-p", "password123")
	require.NoError(t, err)
	_, err = p.run(t, "john", payArgs("75.00")...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, err := p.runContext(ctx, t, "john", "watch", "--interval", "20ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Watching as john_doe (customer), every 20ms")
	assert.Equal(t, 1, strings.Count(out, "[new]"), "同一付款只报告一次")
}

func TestWatcher(t *testing.T) {
	var out bytes.Buffer
	w := newWatcher(&out)

	p := &model.Payment{ID: "p1", Reference: "PAY-1", Amount: "10.00", Currency: "EUR", Status: model.PaymentStatusPending}
	w.observe([]*model.Payment{p})
	assert.Equal(t, "[new] PAY-1 10.00 EUR pending\n", out.String())

	out.Reset()
	w.observe([]*model.Payment{p})
	assert.Empty(t, out.String())

	approved := *p
	approved.Status = model.PaymentStatusApproved
	w.observe([]*model.Payment{&approved})
	assert.Equal(t, "[approved] PAY-1 pending -> approved\n", out.String())

	out.Reset()
	w.observe(nil)
	assert.Equal(t, "[gone] p1\n", out.String())
}

func TestPrintPayments(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printPayments(&out, nil))
	assert.Equal(t, "No payments\n", out.String())

	out.Reset()
	require.NoError(t, printPayments(&out, []*model.Payment{{
		ID: "p1", Reference: "PAY-1", CustomerName: "John Doe", Amount: "10.00", Currency: "EUR",
		BeneficiaryName: "Jane", Status: model.PaymentStatusPending, CreatedAt: time.Now(),
	}}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "10.00 EUR")
}
