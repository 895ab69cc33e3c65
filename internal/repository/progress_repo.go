package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yuqie6/WrestleQuest/internal/schema"
)

// ProgressRepository 进度文档仓储（整文档覆盖写）
type ProgressRepository struct {
	db *gorm.DB
}

// NewProgressRepository 创建仓储
func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Get 读取用户文档，不存在返回 nil, nil
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*schema.ProgressDocument, error) {
	var doc schema.ProgressDocument
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询进度失败: %w", err)
	}
	return &doc, nil
}

// Write 覆盖写整份文档并返回新的 revision（在事务内递增）
func (r *ProgressRepository) Write(ctx context.Context, userID, writerID string, payload []byte) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("user_id 不能为空")
	}
	var rev int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur int64
		if err := tx.Model(&schema.ProgressDocument{}).
			Where("user_id = ?", userID).
			Select("COALESCE(MAX(revision), 0)").
			Scan(&cur).Error; err != nil {
			return fmt.Errorf("读取 revision 失败: %w", err)
		}
		rev = cur + 1
		doc := schema.ProgressDocument{
			UserID:    userID,
			Revision:  rev,
			WriterID:  writerID,
			Payload:   datatypes.JSON(payload),
			UpdatedAt: time.Now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"revision", "writer_id", "payload", "updated_at"}),
		}).Create(&doc).Error
	})
	if err != nil {
		return 0, fmt.Errorf("写入进度失败: %w", err)
	}
	return rev, nil
}

// Revisions 批量读取用户当前 revision（不存在的用户不出现在结果中）
func (r *ProgressRepository) Revisions(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	type row struct {
		UserID   string
		Revision int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&schema.ProgressDocument{}).
		Select("user_id, revision").
		Where("user_id IN ?", userIDs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询 revision 失败: %w", err)
	}
	for _, it := range rows {
		out[it.UserID] = it.Revision
	}
	return out, nil
}

// ListUserIDs 列出已有文档的用户
func (r *ProgressRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&schema.ProgressDocument{}).
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return ids, nil
}
