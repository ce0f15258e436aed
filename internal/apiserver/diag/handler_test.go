package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage/memstore"
)

func TestDiagRoutes(t *testing.T) {
	cfg := auth.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
	store := memstore.NewStore()
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, &model.Account{Username: "john_doe", PasswordHash: "$2a$12$secret", Role: model.RoleCustomer}))
	require.NoError(t, store.CreateAccount(ctx, &model.Account{Username: "alice", PasswordHash: "$2a$12$secret", Role: model.RoleEmployee}))
	require.NoError(t, store.CreatePayment(ctx, &model.Payment{CustomerID: "c1", Status: model.PaymentStatusPending, Reference: "PAY-1", CreatedAt: time.Now()}))

	mux := http.NewServeMux()
	NewHandler(store).RegisterRoutes(mux)
	h := auth.Middleware(cfg)(mux)

	tokenFor := func(role model.Role) string {
		tok, err := auth.GenerateToken(cfg, &model.Account{ID: "x", Username: "x", Role: role})
		require.NoError(t, err)
		return tok
	}
	get := func(path, tok string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if tok != "" {
			r.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	t.Run("未登录", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get("/payments/test-db", "").Code)
	})

	t.Run("客户被拒绝", func(t *testing.T) {
		w := get("/payments/debug-data", tokenFor(model.RoleCustomer))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"message":"Employees only"}`, w.Body.String())
	})

	t.Run("test-db", func(t *testing.T) {
		w := get("/payments/test-db", tokenFor(model.RoleEmployee))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"message": "Database connected successfully",
			"totalPayments": 1,
			"database": "memory",
			"collection": "payments"
		}`, w.Body.String())
	})

	t.Run("debug-data 不含密码哈希", func(t *testing.T) {
		w := get("/payments/debug-data", tokenFor(model.RoleAdmin))
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "$2a$12$secret")

		var resp struct {
			TotalPayments int `json:"totalPayments"`
			TotalUsers    int `json:"totalUsers"`
			Users         []accountSummary
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.TotalPayments)
		assert.Equal(t, 2, resp.TotalUsers)
	})
}
