package schema

import "time"

const (
	ActivityKindApply = "apply"
	ActivityKindUndo  = "undo"
)

// ActivityLog 一次记录/撤销的流水（只追加，用于历史查询）
type ActivityLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	RequestID    string    `gorm:"size:36;uniqueIndex"`
	UserID       string    `gorm:"size:64;index:idx_activity_user_ts,priority:1;not null"`
	Kind         string    `gorm:"size:16;not null"` // apply/undo
	SkillIndex   int       `gorm:"not null"`
	SkillKey     string    `gorm:"size:64;index"`
	Activity     string    `gorm:"size:200"`
	Duration     int       `gorm:"not null;default:0"`
	PointsEarned int       `gorm:"not null;default:0"` // undo 时为 -1
	StreakBonus  int       `gorm:"not null;default:0"`
	XPDelta      int       `gorm:"not null;default:0"`
	LevelAfter   int       `gorm:"not null;default:1"`
	Revision     int64     `gorm:"not null;default:0"` // 0 表示持久化失败
	Timestamp    int64     `gorm:"index:idx_activity_user_ts,priority:2;not null"` // Unix ms
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
