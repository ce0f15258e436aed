package model

import "time"

// PaymentStatus 付款请求状态
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCompleted PaymentStatus = "completed" // 仅统计历史数据，API 不会写入
)

// IsReviewDecision 是否为员工审核可设置的目标状态
func (s PaymentStatus) IsReviewDecision() bool {
	return s == PaymentStatusApproved || s == PaymentStatusRejected
}

// Payment 付款请求
//
// 状态只沿 pending → approved / rejected 单向流转，
// 审核时记录审核人与审核时间。
type Payment struct {
	ID              string        `json:"_id" bson:"_id"`
	CustomerID      string        `json:"customerId" bson:"customerId"`
	CustomerName    string        `json:"customerName" bson:"customerName"`
	SourceAccount   string        `json:"sourceAccount" bson:"sourceAccount"`
	TargetAccount   string        `json:"targetAccount" bson:"targetAccount"`
	BeneficiaryName string        `json:"beneficiaryName" bson:"beneficiaryName"`
	BeneficiaryBank string        `json:"beneficiaryBank" bson:"beneficiaryBank"` // SWIFT 代码
	Amount          string        `json:"amount" bson:"amount"`                   // 十进制字符串，最多两位小数
	Currency        string        `json:"currency" bson:"currency"`
	Purpose         string        `json:"purpose" bson:"purpose"`
	Status          PaymentStatus `json:"status" bson:"status"`
	Reference       string        `json:"reference" bson:"reference"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	ReviewedBy      string        `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
}

// PaymentStats 员工看板统计
type PaymentStats struct {
	TotalPayments  int64      `json:"totalPayments"`
	Pending        int64      `json:"pending"`
	Approved       int64      `json:"approved"`
	Rejected       int64      `json:"rejected"`
	Completed      int64      `json:"completed"`
	LatestPayments []*Payment `json:"latestPayments"`
}

// PaymentEvent 付款变更事件（WebSocket 推送 / 跨实例广播）
type PaymentEvent struct {
	Type      string        `json:"type"` // payment.created | payment.status_changed
	PaymentID string        `json:"paymentId"`
	Reference string        `json:"reference"`
	Status    PaymentStatus `json:"status"`
	Actor     string        `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	EventPaymentCreated       = "payment.created"
	EventPaymentStatusChanged = "payment.status_changed"
)
