// Package eventbus 事件总线抽象接口
//
// 付款创建和审核后发布 PaymentEvent，员工端 WebSocket 订阅后实时推送。
// 单实例使用进程内 Local，多实例部署使用 Redis Streams 实现共享事件流。
package eventbus

import (
	"context"

	"payments-portal/internal/shared/model"
)

// PaymentEventBus 付款事件总线接口
//
// Subscribe 返回的 channel 在 ctx 取消或总线关闭后被关闭。
type PaymentEventBus interface {
	Publish(ctx context.Context, event *model.PaymentEvent) error
	Subscribe(ctx context.Context) (<-chan *model.PaymentEvent, error)
	Close() error
}
