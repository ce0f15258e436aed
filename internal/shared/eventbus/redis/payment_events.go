// Package redis 基于 Redis Streams 的付款事件总线
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"payments-portal/internal/shared/eventbus"
	"payments-portal/internal/shared/model"
)

// Store Redis 事件总线，多个 API 实例共享同一条 Stream
type Store struct {
	client *redis.Client
	key    string
}

// NewStoreFromClient 从现有 Redis 客户端创建事件总线
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client, key: eventbus.KeyPaymentEvents}
}

// Publish 追加事件到 Stream
func (s *Store) Publish(ctx context.Context, event *model.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type": event.Type,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published %s payment=%s seq=%s", event.Type, event.PaymentID, id)
	return nil
}

// Subscribe 从调用时的 Stream 末尾开始阻塞读取新事件
//
// 读取位置在返回前确定，之后发布的事件不会因 XREAD 超时重试而丢失。
func (s *Store) Subscribe(ctx context.Context) (<-chan *model.PaymentEvent, error) {
	lastID, err := s.tailID(ctx)
	if err != nil {
		return nil, err
	}
	ch := make(chan *model.PaymentEvent, 64)

	go func() {
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{s.key, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() == nil {
					log.Printf("[Redis/EventBus] subscription error: %v", err)
				}
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					lastID = msg.ID
					event, ok := decode(msg)
					if !ok {
						continue
					}
					select {
					case ch <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// tailID 返回 Stream 最后一条消息的 ID，Stream 为空时从头读取
func (s *Store) tailID(ctx context.Context) (string, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.key, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

// Recent 返回最近 count 条事件，新事件在前
func (s *Store) Recent(ctx context.Context, count int64) ([]*model.PaymentEvent, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.key, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	events := make([]*model.PaymentEvent, 0, len(msgs))
	for _, msg := range msgs {
		if ev, ok := decode(msg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Close 客户端由 infra 统一关闭
func (s *Store) Close() error {
	return nil
}

func decode(msg redis.XMessage) (*model.PaymentEvent, bool) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return nil, false
	}
	var event model.PaymentEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		log.Printf("[Redis/EventBus] bad event %s: %v", msg.ID, err)
		return nil, false
	}
	return &event, true
}

var _ eventbus.PaymentEventBus = (*Store)(nil)
