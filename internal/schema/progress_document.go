package schema

import (
	"time"

	"gorm.io/datatypes"
)

// ProgressDocument 用户进度整文档（一用户一行，整体覆盖写）
type ProgressDocument struct {
	UserID    string         `gorm:"primaryKey;size:64"`
	Revision  int64          `gorm:"not null;index"` // 每次写入递增，作为变更令牌
	WriterID  string         `gorm:"size:64"`        // 写入方实例 ID，用于识别回声
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (ProgressDocument) TableName() string {
	return "progress_documents"
}
