package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yuqie6/WrestleQuest/internal/schema"
)

// ActivityLogRepository 活动流水仓储
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Insert 追加一条流水；相同 RequestID 重复写入时忽略
func (r *ActivityLogRepository) Insert(ctx context.Context, entry *schema.ActivityLog) error {
	if entry == nil {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error; err != nil {
		return fmt.Errorf("写入活动流水失败: %w", err)
	}
	return nil
}

// ListRecent 按时间倒序列出用户最近的流水
func (r *ActivityLogRepository) ListRecent(ctx context.Context, userID string, limit int) ([]schema.ActivityLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []schema.ActivityLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询活动流水失败: %w", err)
	}
	return out, nil
}

// ListByTimeRange 列出时间区间 [startMs, endMs] 内的流水（正序）
func (r *ActivityLogRepository) ListByTimeRange(ctx context.Context, userID string, startMs, endMs int64) ([]schema.ActivityLog, error) {
	var out []schema.ActivityLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, startMs, endMs).
		Order("timestamp ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询活动流水失败: %w", err)
	}
	return out, nil
}

// SkillTotal 某技能流水的点数合计
type SkillTotal struct {
	SkillKey string
	Points   int
	Events   int64
}

// TotalsBySkill 汇总用户各技能的净点数
func (r *ActivityLogRepository) TotalsBySkill(ctx context.Context, userID string) ([]SkillTotal, error) {
	var out []SkillTotal
	if err := r.db.WithContext(ctx).
		Model(&schema.ActivityLog{}).
		Select("skill_key, COALESCE(SUM(points_earned), 0) AS points, COUNT(1) AS events").
		Where("user_id = ?", userID).
		Group("skill_key").
		Order("skill_key").
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("统计活动流水失败: %w", err)
	}
	return out, nil
}
