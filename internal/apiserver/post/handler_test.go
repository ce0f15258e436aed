package post

import (
	"bytes"
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

func newServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	cfg := auth.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
	mux := http.NewServeMux()
	NewHandler(memstore.NewStore()).RegisterRoutes(mux)

	tok, err := auth.GenerateToken(cfg, &model.Account{ID: "cust-1", Username: "john_doe", Role: model.RoleCustomer})
	require.NoError(t, err)
	return auth.Middleware(cfg)(mux), tok
}

func do(h http.Handler, method, path, body, tok string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestPostLifecycle(t *testing.T) {
	h, tok := newServer(t)

	// 列表公开
	w := do(h, http.MethodGet, "/post", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	// 写入需要登录
	w = do(h, http.MethodPost, "/post/upload", `{"content":"hi"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodPost, "/post/upload", `{"content":"<b>hello</b>","image":"cat.png"}`, tok)
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "john_doe", created.User, "未填写 user 时使用登录用户名")
	assert.Equal(t, "bhello/b", created.Content)

	w = do(h, http.MethodGet, "/post/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodPatch, "/post/"+created.ID, `{"content":"updated"}`, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "updated", updated.Content)
	assert.Equal(t, "cat.png", updated.Image, "未提供的字段保持原值")

	w = do(h, http.MethodGet, "/post", "", "")
	var list []model.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(h, http.MethodDelete, "/post/"+created.ID, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodDelete, "/post/"+created.ID, "", tok)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodGet, "/post/"+created.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Not found"}`, w.Body.String())
}

func TestPostNotFound(t *testing.T) {
	h, tok := newServer(t)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPatch, "/post/missing", `{"content":"x"}`, tok).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, "/post/missing", "", tok).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/post/upload", `{bad`, tok).Code)
}

func TestPostImageURL(t *testing.T) {
	h, tok := newServer(t)

	t.Run("查询串原样保存", func(t *testing.T) {
		w := do(h, http.MethodPost, "/post/upload", `{"content":"pic","image":"https://cdn.example.com/i.png?a=1&b=2"}`, tok)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var created model.Post
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.Equal(t, "https://cdn.example.com/i.png?a=1&b=2", created.Image)

		w = do(h, http.MethodPatch, "/post/"+created.ID, `{"image":"/img/new.png?w=10&h=20"}`, tok)
		require.Equal(t, http.StatusOK, w.Code)
		var updated model.Post
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.Equal(t, "/img/new.png?w=10&h=20", updated.Image)
	})

	tests := []struct {
		name  string
		image string
	}{
		{"javascript 协议", "javascript:alert(1)"},
		{"data 协议", "data:text/html;base64,PHNjcmlwdD4="},
		{"包含标签", "x.png\"><script>"},
		{"无法解析", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{"content": "pic", "image": tt.image})
			require.NoError(t, err)
			w := do(h, http.MethodPost, "/post/upload", string(body), tok)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"message":"Invalid image URL"}`, w.Body.String())
		})
	}
}
