// Package post 演示帖子 - HTTP 处理
package post

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
	"payments-portal/internal/shared/validation"
)

const (
	// MsgPostNotFound 帖子不存在
	MsgPostNotFound = "Not found"
	// MsgInvalidImage 图片地址无法解析或协议不允许
	MsgInvalidImage = "Invalid image URL"
)

// imageURL 校验图片地址并原样保留（查询串中的 & 不能被清洗掉）
//
// 允许相对路径和 http/https 绝对地址。
func imageURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
	default:
		return "", false
	}
	if strings.ContainsAny(raw, "<>\"' ") {
		return "", false
	}
	return raw, true
}

// Handler 帖子 HTTP 处理器
type Handler struct {
	store storage.PostStore
}

// NewHandler 创建帖子处理器
func NewHandler(store storage.PostStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册帖子路由；读取公开，写入需要登录（由认证中间件保证）
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /post", h.List)
	mux.HandleFunc("GET /post/{id}", h.Get)
	mux.HandleFunc("POST /post/upload", h.Create)
	mux.HandleFunc("PATCH /post/{id}", h.Update)
	mux.HandleFunc("DELETE /post/{id}", h.Delete)
}

// updateRequest 字段为 nil 时保持原值
type updateRequest struct {
	User    *string `json:"user"`
	Content *string `json:"content"`
	Image   *string `json:"image"`
}

// List 全部帖子
// GET /post
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.store.ListPosts(r.Context())
	if err != nil {
		log.Printf("[post.list] ListPosts error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load posts")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// Get 单个帖子
// GET /post/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Create 发布帖子
// POST /post/upload
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Post
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	image, ok := imageURL(req.Image)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidImage)
		return
	}
	post := &model.Post{
		User:    validation.Sanitize(req.User),
		Content: validation.Sanitize(req.Content),
		Image:   image,
	}
	if post.User == "" {
		if claims := auth.ClaimsFrom(r.Context()); claims != nil {
			post.User = claims.Username
		}
	}
	if err := h.store.CreatePost(r.Context(), post); err != nil {
		log.Printf("[post.create] CreatePost error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// Update 修改帖子
// PATCH /post/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeError(w, "update", err)
		return
	}
	if req.User != nil {
		post.User = validation.Sanitize(*req.User)
	}
	if req.Content != nil {
		post.Content = validation.Sanitize(*req.Content)
	}
	if req.Image != nil {
		image, ok := imageURL(*req.Image)
		if !ok {
			writeError(w, http.StatusBadRequest, MsgInvalidImage)
			return
		}
		post.Image = image
	}

	if err := h.store.UpdatePost(r.Context(), post); err != nil {
		h.storeError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Delete 删除帖子
// DELETE /post/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeletePost(r.Context(), id); err != nil {
		h.storeError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted", "id": id})
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, MsgPostNotFound)
		return
	}
	log.Printf("[post.%s] store error: %v", op, err)
	writeError(w, http.StatusInternalServerError, "Post operation failed")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
