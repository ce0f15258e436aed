// Package eventbus 事件总线类型定义
package eventbus

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyPaymentEvents 付款事件 Stream
	KeyPaymentEvents = "payments:events"

	// MaxStreamLength Stream 最大长度（近似裁剪）
	MaxStreamLength = 1000

	// subscriberBuffer 每个订阅者的缓冲区大小，满时丢弃事件
	subscriberBuffer = 64
)
