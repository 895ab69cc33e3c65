// Package gateway 进度文档的持久化网关：整文档写入 + 按用户订阅变更。
//
// 进程内写入通过 eventbus 广播；其他进程（例如 server 运行时执行的 CLI）的写入
// 由 Watch 监听数据库文件变化后按 revision 比对发现。
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/yuqie6/WrestleQuest/internal/eventbus"
	"github.com/yuqie6/WrestleQuest/internal/schema"
)

// Snapshot 某一时刻的文档快照；Found=false 表示用户尚无文档
type Snapshot struct {
	UserID   string
	Found    bool
	Revision int64
	WriterID string
	Payload  []byte
}

// Store 文档存储
type Store interface {
	Get(ctx context.Context, userID string) (*schema.ProgressDocument, error)
	Write(ctx context.Context, userID, writerID string, payload []byte) (int64, error)
	Revisions(ctx context.Context, userIDs []string) (map[string]int64, error)
}

// Options 网关参数
type Options struct {
	WriterID         string // 为空时生成 uuid
	SubscriberBuffer int
}

// Gateway 持久化网关
type Gateway struct {
	store    Store
	hub      *eventbus.Hub
	writerID string
	buffer   int

	mu       sync.Mutex
	watched  map[string]int   // userID -> 订阅数
	lastSeen map[string]int64 // userID -> 已广播的最大 revision
}

// New 创建网关
func New(store Store, hub *eventbus.Hub, opts Options) *Gateway {
	if hub == nil {
		hub = eventbus.NewHub()
	}
	if opts.WriterID == "" {
		opts.WriterID = uuid.NewString()
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 16
	}
	return &Gateway{
		store:    store,
		hub:      hub,
		writerID: opts.WriterID,
		buffer:   opts.SubscriberBuffer,
		watched:  make(map[string]int),
		lastSeen: make(map[string]int64),
	}
}

// WriterID 本实例的写入方 ID
func (g *Gateway) WriterID() string { return g.writerID }

// Read 读取当前快照
func (g *Gateway) Read(ctx context.Context, userID string) (Snapshot, error) {
	doc, err := g.store.Get(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("读取进度文档失败: %w", err)
	}
	if doc == nil {
		return Snapshot{UserID: userID}, nil
	}
	return Snapshot{
		UserID:   userID,
		Found:    true,
		Revision: doc.Revision,
		WriterID: doc.WriterID,
		Payload:  []byte(doc.Payload),
	}, nil
}

// Write 覆盖写整份文档，成功后广播新 revision
func (g *Gateway) Write(ctx context.Context, userID string, payload []byte) (int64, error) {
	rev, err := g.store.Write(ctx, userID, g.writerID, payload)
	if err != nil {
		return 0, err
	}
	g.advance(userID, rev)
	g.hub.Publish(eventbus.Event{
		Type:     eventbus.TypeProgressChanged,
		UserID:   userID,
		Revision: rev,
		Data:     map[string]any{"writer_id": g.writerID},
	})
	return rev, nil
}

// Subscribe 订阅用户文档变更。首个元素是当前快照（可能是 NotFound），
// 之后每次出现更新的 revision 推送一次；消费者跟不上时只保留最新快照。ctx 结束后通道关闭。
func (g *Gateway) Subscribe(ctx context.Context, userID string) (<-chan Snapshot, error) {
	// 先订阅再读取，避免两者之间的写入被漏掉
	subCtx, cancel := context.WithCancel(ctx)
	events := g.hub.SubscribeUser(subCtx, g.buffer, userID)

	initial, err := g.Read(ctx, userID)
	if err != nil {
		cancel()
		return nil, err
	}

	g.track(userID, 1)
	out := make(chan Snapshot, 1)
	out <- initial

	go func() {
		defer close(out)
		defer g.track(userID, -1)
		defer cancel()

		last := initial.Revision
		for evt := range events {
			if evt.Type != eventbus.TypeProgressChanged || evt.UserID != userID || evt.Revision <= last {
				continue
			}
			snap, err := g.Read(subCtx, userID)
			if err != nil {
				slog.Warn("订阅读取进度失败", "user_id", userID, "error", err)
				continue
			}
			if !snap.Found || snap.Revision <= last {
				continue
			}
			last = snap.Revision
			deliverLatest(out, snap)
		}
	}()
	return out, nil
}

// deliverLatest 非阻塞投递，通道已满时用新快照替换旧快照（调用方是唯一发送者）
func deliverLatest(out chan Snapshot, snap Snapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}

// Poll 对比被订阅用户在存储中的 revision，发现外部写入时广播
func (g *Gateway) Poll(ctx context.Context) (int, error) {
	users := g.trackedUsers()
	if len(users) == 0 {
		return 0, nil
	}
	revs, err := g.store.Revisions(ctx, users)
	if err != nil {
		return 0, fmt.Errorf("轮询 revision 失败: %w", err)
	}
	changed := 0
	for userID, rev := range revs {
		if !g.advance(userID, rev) {
			continue
		}
		changed++
		g.hub.Publish(eventbus.Event{
			Type:     eventbus.TypeProgressChanged,
			UserID:   userID,
			Revision: rev,
			Data:     map[string]any{"source": "external"},
		})
	}
	return changed, nil
}

func (g *Gateway) track(userID string, delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.watched[userID] += delta
	if g.watched[userID] <= 0 {
		delete(g.watched, userID)
	}
}

func (g *Gateway) trackedUsers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.watched))
	for id := range g.watched {
		out = append(out, id)
	}
	return out
}

// advance 记录已知的最大 revision，返回是否前进
func (g *Gateway) advance(userID string, rev int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rev <= g.lastSeen[userID] {
		return false
	}
	g.lastSeen[userID] = rev
	return true
}
