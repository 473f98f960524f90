package db

import (
	"context"
	"fmt"
	"time"

	"toolbroker/internal/model"
)

func (s *gormService) CreateAuthCode(ctx context.Context, code *model.AuthCode) error {
	if err := s.db.WithContext(ctx).Create(code).Error; err != nil {
		return fmt.Errorf("failed to create auth code: %w", mapErr(err))
	}
	return nil
}

// ConsumeAuthCode marks the code consumed in a single conditional UPDATE and reports whether
// this call was the one that applied it. A false result carries no reason; callers read the
// row to classify the failure.
func (s *gormService) ConsumeAuthCode(ctx context.Context, code string, service model.Service, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.AuthCode{}).
		Where("code = ? AND service = ? AND consumed_at IS NULL AND expires_at > ?", code, service, now.UTC()).
		UpdateColumn("consumed_at", now.UTC())
	if result.Error != nil {
		return false, fmt.Errorf("failed to consume auth code: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormService) GetAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	var ac model.AuthCode
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&ac).Error; err != nil {
		return nil, mapErr(err)
	}
	return &ac, nil
}

// PurgeAuthCodes deletes codes whose TTL ended before the cutoff, consumed or not.
func (s *gormService) PurgeAuthCodes(ctx context.Context, expiredBefore time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", expiredBefore.UTC()).Delete(&model.AuthCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge auth codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}
