package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/internal/pkg/metrics"
	"github.com/qs3c/mlm_go_server/internal/pkg/pubsub"
)

const (
	defaultMaxConnsPerMember = 5
	defaultWriteWait         = 10 * time.Second
)

// Hub 在线会员连接表，一个会员可以同时保持多个连接（多标签页、重连）
type Hub struct {
	mu           sync.RWMutex
	members      map[int64][]*Client
	maxPerMember int
	writeWait    time.Duration
	logger       *zap.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 串行化写
}

// Message 推送给前端的事件
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Option func(*Hub)

// WithMaxConnsPerMember 超出上限时关闭该会员最早的连接
func WithMaxConnsPerMember(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxPerMember = n
		}
	}
}

func WithWriteWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeWait = d
		}
	}
}

func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		members:      make(map[int64][]*Client),
		maxPerMember: defaultMaxConnsPerMember,
		writeWait:    defaultWriteWait,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	conns := append(h.members[client.UserID], client)
	var evicted []*Client
	if over := len(conns) - h.maxPerMember; over > 0 {
		evicted = append(evicted, conns[:over]...)
		conns = append([]*Client(nil), conns[over:]...)
	}
	h.members[client.UserID] = conns
	h.mu.Unlock()

	metrics.WSConnections.Add(float64(1 - len(evicted)))
	for _, c := range evicted {
		c.Conn.Close()
	}

	h.logger.Debug("member connected",
		zap.Int64("user_id", client.UserID),
		zap.Int("user_conns", len(conns)),
		zap.Int("evicted", len(evicted)),
	)
}

// remove 返回 client 是否仍在表中
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.members[client.UserID]
	for i, c := range conns {
		if c != client {
			continue
		}
		conns = append(conns[:i:i], conns[i+1:]...)
		if len(conns) == 0 {
			delete(h.members, client.UserID)
		} else {
			h.members[client.UserID] = conns
		}
		metrics.WSConnections.Dec()
		return true
	}
	return false
}

// Unregister 连接断开时调用，被淘汰的连接重复调用无副作用
func (h *Hub) Unregister(client *Client) {
	if h.remove(client) {
		h.logger.Debug("member disconnected", zap.Int64("user_id", client.UserID))
	}
}

func (h *Hub) snapshot(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*Client(nil), h.members[userID]...)
}

// SendToUser 向会员的所有连接推送消息，写失败的连接会被移除并关闭
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	for _, c := range h.snapshot(userID) {
		c.mu.Lock()
		_ = c.Conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.logger.Warn("websocket write failed, dropping connection", zap.Int64("user_id", userID), zap.Error(err))
			h.remove(c)
			c.Conn.Close()
		}
	}
	return nil
}

// Dispatch 将 pubsub 事件转发给对应会员
func (h *Hub) Dispatch(evt *pubsub.Event) {
	if evt == nil || evt.UserID == 0 {
		return
	}
	if err := h.SendToUser(evt.UserID, &Message{Type: evt.Type, Data: evt.Data}); err != nil {
		h.logger.Warn("dispatch event failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[userID]) > 0
}

// ConnectionCount 本实例在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.members {
		total += len(conns)
	}
	return total
}
