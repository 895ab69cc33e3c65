package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// TypeProgressChanged 某用户的进度文档有新 revision
	TypeProgressChanged = "progress_changed"
)

type Event struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id,omitempty"`
	Revision  int64          `json:"revision,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type Hub struct {
	mu       sync.RWMutex
	subs     map[chan Event]string // 值为过滤的 userID，空串表示接收全部
	replaced atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]string)}
}

// Publish 非阻塞广播；订阅者缓冲满时丢弃其最旧的一条，保证最新事件送达
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, userID := range h.subs {
		if userID != "" && userID != evt.UserID {
			continue
		}
		select {
		case ch <- evt:
			continue
		default:
		}
		select {
		case <-ch:
			h.replaced.Add(1)
		default:
		}
		select {
		case ch <- evt:
		default:
			// 并发发布者刚好填满，放弃本条
			h.replaced.Add(1)
		}
	}
}

// Subscribe 订阅全部事件，ctx 结束后自动退订并关闭通道
func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Event {
	return h.SubscribeUser(ctx, buffer, "")
}

// SubscribeUser 只订阅指定用户的事件；其他用户的事件不进入该缓冲，也就不会挤掉它
func (h *Hub) SubscribeUser(ctx context.Context, buffer int, userID string) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = userID
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Replaced 因缓冲满被替换掉的旧事件数
func (h *Hub) Replaced() int64 {
	return h.replaced.Load()
}
