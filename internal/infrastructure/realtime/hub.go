// Package realtime 按频道向 SSE 订阅者广播事件
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"drm-scribe-orchestra/pkg/logger"
)

// clientBuffer 每个订阅者的出站缓冲
const clientBuffer = 32

// Event 一条待推送的事件
type Event struct {
	Channel string `json:"channel"`
	Name    string `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// Client 一个 SSE 订阅者
type Client struct {
	ID       string
	channel  string
	outbound chan Event
	once     sync.Once
	done     chan struct{}
}

// Events 出站事件
func (c *Client) Events() <-chan Event {
	return c.outbound
}

// Done 客户端被关闭时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub 频道到订阅者的路由表；慢订阅者的消息会被丢弃而不是阻塞广播
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*Client]struct{}
	heartbeat     time.Duration
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*Client]struct{}),
		heartbeat:     15 * time.Second,
	}
}

// Subscribe 订阅频道
func (h *Hub) Subscribe(channel string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		channel:  channel,
		outbound: make(chan Event, clientBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscriptions[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		h.subscriptions[channel] = subs
	}
	subs[c] = struct{}{}
	return c
}

// Unsubscribe 取消订阅并关闭客户端，可重复调用
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	if subs, ok := h.subscriptions[c.channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscriptions, c.channel)
		}
	}
	h.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

// Subscribers 返回频道当前订阅者数量
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[channel])
}

// Broadcast 向频道全部订阅者投递事件
func (h *Hub) Broadcast(ctx context.Context, ev Event) {
	if ev.Channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[ev.Channel] {
		select {
		case c.outbound <- ev:
		default:
			logger.Warn(ctx, "dropping realtime event; outbound buffer full", "client_id", c.ID, "channel", ev.Channel)
		}
	}
}

// Heartbeat 连接保活间隔
func (h *Hub) Heartbeat() time.Duration {
	return h.heartbeat
}
