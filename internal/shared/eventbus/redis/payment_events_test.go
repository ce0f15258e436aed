package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-portal/internal/shared/model"
)

func setupTestStore(t *testing.T) *Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	s := NewStoreFromClient(client)
	s.key = "payments:events:test"
	client.Del(context.Background(), s.key)
	return s
}

func TestStore_PublishSubscribe(t *testing.T) {
	s := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx)
	require.NoError(t, err)

	// 等待 XREAD 进入阻塞
	time.Sleep(100 * time.Millisecond)

	ev := &model.PaymentEvent{
		Type:      model.EventPaymentStatusChanged,
		PaymentID: "p1",
		Status:    model.PaymentStatusApproved,
		Actor:     "alice",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.Publish(context.Background(), ev))

	select {
	case got := <-ch:
		assert.Equal(t, "p1", got.PaymentID)
		assert.Equal(t, model.PaymentStatusApproved, got.Status)
		assert.Equal(t, "alice", got.Actor)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestStore_SubscribeStartsAtTail(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Publish(ctx, &model.PaymentEvent{Type: model.EventPaymentCreated, PaymentID: "old"}))

	ch, err := s.Subscribe(ctx)
	require.NoError(t, err)

	// 不等待 XREAD 就发布，订阅位置已在返回前确定
	require.NoError(t, s.Publish(ctx, &model.PaymentEvent{Type: model.EventPaymentCreated, PaymentID: "new-1"}))
	require.NoError(t, s.Publish(ctx, &model.PaymentEvent{Type: model.EventPaymentCreated, PaymentID: "new-2"}))

	for _, want := range []string{"new-1", "new-2"} {
		select {
		case got := <-ch:
			assert.Equal(t, want, got.PaymentID)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestStore_SubscribeEmptyStream(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Publish(ctx, &model.PaymentEvent{Type: model.EventPaymentCreated, PaymentID: "first"}))

	select {
	case got := <-ch:
		assert.Equal(t, "first", got.PaymentID)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestStore_Recent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, s.Publish(ctx, &model.PaymentEvent{Type: model.EventPaymentCreated, PaymentID: id}))
	}

	events, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "p3", events[0].PaymentID)
	assert.Equal(t, "p2", events[1].PaymentID)
}
