package schema

import "time"

// SchemaMeta 记录数据库 schema 版本，升级时以版本号作为门闸。
// 表内仅维护单行（ID=1）。
type SchemaMeta struct {
	ID            int       `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null"`
	CatalogVer    int       `gorm:"not null;default:0"` // 写入时的活动目录版本
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
