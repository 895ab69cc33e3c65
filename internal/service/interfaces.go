package service

import (
	"context"

	"github.com/yuqie6/WrestleQuest/internal/gateway"
	"github.com/yuqie6/WrestleQuest/internal/schema"
)

// 外部依赖的最小接口集合（ISP）

// Gateway 持久化网关：整文档写入 + 按用户订阅
type Gateway interface {
	Subscribe(ctx context.Context, userID string) (<-chan gateway.Snapshot, error)
	Write(ctx context.Context, userID string, payload []byte) (int64, error)
}

type ActivityLogRepository interface {
	Insert(ctx context.Context, entry *schema.ActivityLog) error
	ListRecent(ctx context.Context, userID string, limit int) ([]schema.ActivityLog, error)
	ListByTimeRange(ctx context.Context, userID string, startMs, endMs int64) ([]schema.ActivityLog, error)
}
