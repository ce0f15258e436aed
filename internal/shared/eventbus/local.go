package eventbus

import (
	"context"
	"errors"
	"log"
	"sync"

	"payments-portal/internal/shared/model"
)

// ErrClosed 总线已关闭
var ErrClosed = errors.New("eventbus: closed")

// Local 进程内事件总线，扇出到所有订阅者
//
// 慢订阅者的缓冲区满时丢弃事件，不阻塞发布方。
type Local struct {
	mu     sync.RWMutex
	subs   map[chan *model.PaymentEvent]struct{}
	closed bool
}

// NewLocal 创建进程内事件总线
func NewLocal() *Local {
	return &Local{subs: make(map[chan *model.PaymentEvent]struct{})}
}

func (b *Local) Publish(ctx context.Context, event *model.PaymentEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			log.Printf("[eventbus] subscriber buffer full, dropping %s for %s", event.Type, event.PaymentID)
		}
	}
	return nil
}

func (b *Local) Subscribe(ctx context.Context) (<-chan *model.PaymentEvent, error) {
	ch := make(chan *model.PaymentEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()
	return ch, nil
}

func (b *Local) unsubscribe(ch chan *model.PaymentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close 关闭所有订阅 channel
func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}

var _ PaymentEventBus = (*Local)(nil)
