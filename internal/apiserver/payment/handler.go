// Package payment 付款请求 - HTTP 处理
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/shared/eventbus"
	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
	"payments-portal/internal/shared/validation"
	"payments-portal/pkg/logging"
)

// 角色校验提示
const (
	MsgEmployeesCannotCreate = "Employees cannot create payments. Use the verification portal instead."
	MsgEmployeesCannotList   = "Employees cannot access customer payment list."
	MsgOnlyEmployeesPending  = "Only employees can view pending payments."
	MsgOnlyEmployeesAll      = "Only employees can view all payments."
	MsgOnlyEmployeesUpdate   = "Only employees can update payment status."
	MsgOnlyEmployeesStats    = "Only employees can view statistics."
)

// 其他响应提示
const (
	MsgValidationFailed   = "Validation failed"
	MsgInvalidStatus      = "Invalid status value"
	MsgPaymentNotFound    = "Payment not found"
	MsgInvalidPagination  = "Invalid pagination parameters"
	MsgPaymentCreated     = "Payment request created successfully"
	MsgPaymentCreateError = "Payment creation failed"
)

// 分页参数
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// latestCount 统计接口返回的最近付款条数
const latestCount = 5

// Handler 付款 HTTP 处理器
type Handler struct {
	store   storage.PaymentStore
	bus     eventbus.PaymentEventBus
	logger  *logging.Logger
	onEvent func(ev *model.PaymentEvent)
	now     func() time.Time
}

// Option Handler 可选项
type Option func(*Handler)

// WithEventBus 付款变更发布到事件总线
func WithEventBus(bus eventbus.PaymentEventBus) Option {
	return func(h *Handler) { h.bus = bus }
}

// WithLogger 审计日志
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithEventObserver 每个付款事件产生时回调（用于 metrics）
func WithEventObserver(fn func(ev *model.PaymentEvent)) Option {
	return func(h *Handler) { h.onEvent = fn }
}

// NewHandler 创建付款处理器
func NewHandler(store storage.PaymentStore, opts ...Option) *Handler {
	h := &Handler{store: store, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.Default("payment")
	}
	return h
}

// RegisterRoutes 注册付款相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	customer := func(msg string, fn http.HandlerFunc) http.HandlerFunc {
		return auth.RequireRole(msg, model.RoleCustomer)(fn)
	}
	staff := func(msg string, fn http.HandlerFunc) http.HandlerFunc {
		return auth.RequireRole(msg, auth.StaffRoles...)(fn)
	}

	mux.HandleFunc("POST /payments/create", customer(MsgEmployeesCannotCreate, h.Create))
	mux.HandleFunc("GET /payments/my-payments", customer(MsgEmployeesCannotList, h.MyPayments))
	mux.HandleFunc("GET /payments/history", customer(MsgEmployeesCannotList, h.MyPayments))

	mux.HandleFunc("GET /payments/pending", staff(MsgOnlyEmployeesPending, h.Pending))
	mux.HandleFunc("GET /payments/all", staff(MsgOnlyEmployeesAll, h.All))
	mux.HandleFunc("PATCH /payments/{id}/status", staff(MsgOnlyEmployeesUpdate, h.UpdateStatus))
	mux.HandleFunc("GET /payments/stats", staff(MsgOnlyEmployeesStats, h.Stats))
	mux.HandleFunc("GET /payments/dashboard/stats", staff(MsgOnlyEmployeesStats, h.Stats))
}

// ============================================================================
// 请求/响应类型
// ============================================================================

// CreateRequest 创建付款请求体
type CreateRequest struct {
	SourceAccount   string     `json:"sourceAccount"`
	TargetAccount   string     `json:"targetAccount"`
	BeneficiaryName string     `json:"beneficiaryName"`
	BeneficiaryBank string     `json:"beneficiaryBank"`
	Amount          flexString `json:"amount"`
	Currency        string     `json:"currency"`
	Purpose         string     `json:"purpose"`
}

// CreateResponse 创建成功响应
type CreateResponse struct {
	Message   string              `json:"message"`
	PaymentID string              `json:"paymentId"`
	Reference string              `json:"reference"`
	Status    model.PaymentStatus `json:"status"`
	Amount    string              `json:"amount"`
	Currency  string              `json:"currency"`
	Timestamp time.Time           `json:"timestamp"`
}

// Pagination 分页元数据
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ListResponse 付款列表响应
type ListResponse struct {
	Payments   []*model.Payment `json:"payments"`
	Pagination *Pagination      `json:"pagination,omitempty"`
}

type updateStatusRequest struct {
	Status model.PaymentStatus `json:"status"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create 客户提交付款请求
// POST /payments/create
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFrom(r.Context())

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := validation.PaymentInput{
		SourceAccount:   validation.Sanitize(req.SourceAccount),
		TargetAccount:   validation.Sanitize(req.TargetAccount),
		BeneficiaryName: validation.Sanitize(req.BeneficiaryName),
		BeneficiaryBank: validation.Sanitize(req.BeneficiaryBank),
		Amount:          validation.Sanitize(string(req.Amount)),
		Currency:        validation.Sanitize(req.Currency),
		Purpose:         validation.Sanitize(req.Purpose),
	}
	if errs := validation.ValidatePayment(in); len(errs) > 0 {
		log.Printf("[payment.create] validation failed for %s: %v", claims.Username, errs)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": MsgValidationFailed,
			"errors":  errs,
		})
		return
	}
	if msg := validation.CheckAmountBounds(in.Amount); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := h.now().UTC()
	payment := &model.Payment{
		CustomerID:      claims.UserID,
		CustomerName:    claims.Username,
		SourceAccount:   in.SourceAccount,
		TargetAccount:   in.TargetAccount,
		BeneficiaryName: in.BeneficiaryName,
		BeneficiaryBank: in.BeneficiaryBank,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Purpose:         in.Purpose,
		Status:          model.PaymentStatusPending,
		CreatedAt:       now,
	}

	// 参考号冲突时重新生成
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		payment.ID = ""
		payment.Reference = generateReference(now)
		if err = h.store.CreatePayment(r.Context(), payment); !errors.Is(err, storage.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		log.Printf("[payment.create] CreatePayment error: %v", err)
		writeError(w, http.StatusInternalServerError, MsgPaymentCreateError)
		return
	}

	log.Printf("[payment] created %s (%s %s) for %s", payment.Reference, payment.Amount, payment.Currency, claims.Username)
	h.logger.AuditLog(r.Context(), "payment.create", claims.Username,
		slog.String("reference", payment.Reference),
		slog.String("amount", payment.Amount),
		slog.String("currency", payment.Currency))
	h.publish(r.Context(), &model.PaymentEvent{
		Type:      model.EventPaymentCreated,
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Status:    payment.Status,
		Actor:     claims.Username,
		Timestamp: now,
	})

	writeJSON(w, http.StatusCreated, CreateResponse{
		Message:   MsgPaymentCreated,
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Status:    payment.Status,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Timestamp: now,
	})
}

// MyPayments 当前客户的付款，最新在前
// GET /payments/my-payments, GET /payments/history
//
// 带 page 或 limit 参数时分页并返回 pagination。
func (h *Handler) MyPayments(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFrom(r.Context())
	h.list(w, r, storage.PaymentFilter{CustomerID: claims.UserID}, "Failed to load payments")
}

// Pending 待审核付款
// GET /payments/pending
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, storage.PaymentFilter{Status: model.PaymentStatusPending}, "Failed to load pending payments")
}

// All 全部付款
// GET /payments/all
func (h *Handler) All(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, storage.PaymentFilter{}, "Failed to load payments")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter storage.PaymentFilter, failMsg string) {
	page, limit, paged, ok := parsePagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidPagination)
		return
	}

	resp := ListResponse{}
	if paged {
		total, err := h.store.CountPayments(r.Context(), filter)
		if err != nil {
			log.Printf("[payment.list] CountPayments error: %v", err)
			writeError(w, http.StatusInternalServerError, failMsg)
			return
		}
		filter.Limit = limit
		filter.Offset = (page - 1) * limit
		resp.Pagination = &Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		}
	}

	payments, err := h.store.ListPayments(r.Context(), filter)
	if err != nil {
		log.Printf("[payment.list] ListPayments error: %v", err)
		writeError(w, http.StatusInternalServerError, failMsg)
		return
	}
	resp.Payments = payments
	writeJSON(w, http.StatusOK, resp)
}

// parsePagination 解析 page / limit；两者都未提供时不分页
func parsePagination(r *http.Request) (page, limit int, paged, ok bool) {
	q := r.URL.Query()
	rawPage, rawLimit := q.Get("page"), q.Get("limit")
	if rawPage == "" && rawLimit == "" {
		return 0, 0, false, true
	}

	page, limit = 1, DefaultPageSize
	var err error
	if rawPage != "" {
		if page, err = strconv.Atoi(rawPage); err != nil || page < 1 {
			return 0, 0, true, false
		}
	}
	if rawLimit != "" {
		if limit, err = strconv.Atoi(rawLimit); err != nil || limit < 1 {
			return 0, 0, true, false
		}
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit, true, true
}

// UpdateStatus 员工审核付款
// PATCH /payments/{id}/status
//
// 只有 pending 状态的付款可以审核；并发审核同一笔付款时只有一个成功。
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFrom(r.Context())
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidStatus)
		return
	}
	if !req.Status.IsReviewDecision() {
		writeError(w, http.StatusBadRequest, MsgInvalidStatus)
		return
	}

	now := h.now().UTC()
	err := h.store.UpdatePaymentStatus(r.Context(), id, model.PaymentStatusPending, req.Status, claims.Username, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("[payment.review] no pending payment %s", id)
			writeError(w, http.StatusNotFound, MsgPaymentNotFound)
			return
		}
		log.Printf("[payment.review] UpdatePaymentStatus error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update payment status")
		return
	}

	log.Printf("[payment] %s %s by %s", id, req.Status, claims.Username)
	h.logger.AuditLog(r.Context(), "payment.review", claims.Username,
		slog.String("payment_id", id),
		slog.String("status", string(req.Status)))

	ev := &model.PaymentEvent{
		Type:      model.EventPaymentStatusChanged,
		PaymentID: id,
		Status:    req.Status,
		Actor:     claims.Username,
		Timestamp: now,
	}
	if p, err := h.store.GetPayment(r.Context(), id); err == nil {
		ev.Reference = p.Reference
	}
	h.publish(r.Context(), ev)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Payment " + string(req.Status) + " successfully",
	})
}

// Stats 员工看板统计
// GET /payments/stats, GET /payments/dashboard/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats(r.Context())
	if err != nil {
		log.Printf("[payment.stats] error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) stats(ctx context.Context) (*model.PaymentStats, error) {
	stats := &model.PaymentStats{}
	counts := []struct {
		status model.PaymentStatus
		dst    *int64
	}{
		{"", &stats.TotalPayments},
		{model.PaymentStatusPending, &stats.Pending},
		{model.PaymentStatusApproved, &stats.Approved},
		{model.PaymentStatusRejected, &stats.Rejected},
		{model.PaymentStatusCompleted, &stats.Completed},
	}
	for _, c := range counts {
		n, err := h.store.CountPayments(ctx, storage.PaymentFilter{Status: c.status})
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	latest, err := h.store.ListPayments(ctx, storage.PaymentFilter{Limit: latestCount})
	if err != nil {
		return nil, err
	}
	stats.LatestPayments = latest
	return stats, nil
}

// publish 通知观察者并发布到事件总线；发布失败不影响请求结果
func (h *Handler) publish(ctx context.Context, ev *model.PaymentEvent) {
	if h.onEvent != nil {
		h.onEvent(ev)
	}
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, ev); err != nil {
		log.Printf("[payment] publish %s for %s failed: %v", ev.Type, ev.PaymentID, err)
	}
}
