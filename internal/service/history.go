package service

import (
	"context"

	"github.com/yuqie6/WrestleQuest/internal/repository"
	"github.com/yuqie6/WrestleQuest/internal/schema"
)

// History 最近的活动流水（倒序）
func (s *ProgressService) History(ctx context.Context, userID string, limit int) ([]schema.ActivityLog, error) {
	if s.logs == nil {
		return nil, nil
	}
	return s.logs.ListRecent(ctx, userID, limit)
}

// HistoryOn 指定日期（YYYY-MM-DD，按引擎时区）的活动流水（正序）
func (s *ProgressService) HistoryOn(ctx context.Context, userID, date string) ([]schema.ActivityLog, error) {
	if s.logs == nil {
		return nil, nil
	}
	start, end, err := repository.DayRange(date, s.engine.Location)
	if err != nil {
		return nil, err
	}
	return s.logs.ListByTimeRange(ctx, userID, start, end)
}
