package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/shared/eventbus"
	"payments-portal/internal/shared/model"
)

// MsgFeedEmployeesOnly 非员工订阅付款推送时的提示
const MsgFeedEmployeesOnly = "Only employees can subscribe to payment events"

const (
	feedPingInterval = 30 * time.Second
	feedPongWait     = 60 * time.Second
	feedWriteWait    = 10 * time.Second
	feedReadLimit    = 512
	feedBacklog      = 20
)

// FeedMessage WebSocket 消息
type FeedMessage struct {
	Type      string      `json:"type"` // connected, backlog, payment, pong
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// recentEvents 可回放近期事件的总线（Redis Streams）
type recentEvents interface {
	Recent(ctx context.Context, count int64) ([]*model.PaymentEvent, error)
}

// PaymentFeed 员工端付款事件推送
//
// 路由: GET /ws/payments
//
// 浏览器无法在握手时设置 Authorization 头，令牌也可以放在 ?token= 查询参数里。
type PaymentFeed struct {
	bus          eventbus.PaymentEventBus
	authCfg      auth.Config
	origins      originSet
	metrics      *Metrics
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewPaymentFeed 创建付款推送处理器
func NewPaymentFeed(bus eventbus.PaymentEventBus, authCfg auth.Config, origins originSet, metrics *Metrics) *PaymentFeed {
	f := &PaymentFeed{
		bus:          bus,
		authCfg:      authCfg,
		origins:      origins,
		metrics:      metrics,
		pingInterval: feedPingInterval,
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return f.origins.allows(r.Header.Get("Origin"))
		},
	}
	return f
}

// feedConn 单个连接，写操作串行化
type feedConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	metrics *Metrics
}

func (c *feedConn) send(msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", msg.Type)
	}
	return nil
}

func (c *feedConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait))
}

// HandleWebSocket 校验令牌后升级连接，订阅事件总线并推送
func (f *PaymentFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, auth.MsgTokenInvalid)
		return
	}
	claims, err := auth.ParseToken(f.authCfg, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, auth.MsgTokenInvalid)
		return
	}
	if !claims.HasRole(auth.StaffRoles...) {
		writeError(w, http.StatusForbidden, MsgFeedEmployeesOnly)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feed] upgrade error: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.bus.Subscribe(ctx)
	if err != nil {
		log.Printf("[feed] subscribe error: %v", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "event feed unavailable"),
			time.Now().Add(feedWriteWait))
		conn.Close()
		return
	}

	fc := &feedConn{conn: conn, metrics: f.metrics}
	if f.metrics != nil {
		f.metrics.WSConnectionOpened()
		defer f.metrics.WSConnectionClosed()
	}
	log.Printf("[feed] %s connected", claims.Username)

	fc.send(FeedMessage{
		Type:      "connected",
		Data:      map[string]string{"username": claims.Username, "role": string(claims.Role)},
		Timestamp: time.Now(),
	})
	f.sendBacklog(ctx, fc)

	go func() {
		f.readPump(fc)
		cancel()
	}()
	f.writePump(ctx, fc, events)

	conn.Close()
	log.Printf("[feed] %s disconnected", claims.Username)
}

// sendBacklog 总线支持回放时先推送近期事件（新到旧）
func (f *PaymentFeed) sendBacklog(ctx context.Context, fc *feedConn) {
	rb, ok := f.bus.(recentEvents)
	if !ok {
		return
	}
	recent, err := rb.Recent(ctx, feedBacklog)
	if err != nil {
		log.Printf("[feed] backlog error: %v", err)
		return
	}
	if len(recent) == 0 {
		return
	}
	fc.send(FeedMessage{Type: "backlog", Data: recent, Timestamp: time.Now()})
}

// writePump 转发事件并定期发送心跳，任一写失败即返回
func (f *PaymentFeed) writePump(ctx context.Context, fc *feedConn, events <-chan *model.PaymentEvent) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := fc.send(FeedMessage{Type: "payment", Data: ev, Timestamp: time.Now()}); err != nil {
				log.Printf("[feed] write error: %v", err)
				return
			}
		case <-ticker.C:
			if err := fc.ping(); err != nil {
				return
			}
		}
	}
}

// readPump 处理客户端 {"type":"ping"} 和 pong 帧，连接断开时返回
func (f *PaymentFeed) readPump(fc *feedConn) {
	conn := fc.conn
	conn.SetReadLimit(feedReadLimit)
	conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[feed] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(feedPongWait))

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Type != "ping" {
			continue
		}
		if f.metrics != nil {
			f.metrics.RecordWSMessage("in", "ping")
		}
		fc.send(FeedMessage{Type: "pong", Timestamp: time.Now()})
	}
}
