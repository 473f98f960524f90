package db

import (
	"context"
	"fmt"
	"time"

	"toolbroker/internal/model"
)

func (s *gormService) CreateSessionLock(ctx context.Context, lock *model.SessionLock) error {
	if err := s.db.WithContext(ctx).Create(lock).Error; err != nil {
		return fmt.Errorf("failed to create session lock: %w", mapErr(err))
	}
	return nil
}

// LatestSessionLock returns the most recently started lock for the resource.
func (s *gormService) LatestSessionLock(ctx context.Context, resourceID string) (*model.SessionLock, error) {
	var lock model.SessionLock
	err := s.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("start_time desc").
		First(&lock).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &lock, nil
}

func (s *gormService) PurgeSessionLocks(ctx context.Context, endedBefore time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("end_time < ?", endedBefore.UTC()).Delete(&model.SessionLock{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge session locks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
