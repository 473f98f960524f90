package db

import (
	"context"
	"fmt"

	"toolbroker/internal/model"
)

func (s *gormService) CreateCredential(ctx context.Context, cred *model.Credential) error {
	return mapErr(s.db.WithContext(ctx).Create(cred).Error)
}

func (s *gormService) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	var creds []model.Credential
	if err := s.db.WithContext(ctx).Order("service asc, plan_tier asc").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

func (s *gormService) GetCredential(ctx context.Context, id uint) (*model.Credential, error) {
	var cred model.Credential
	if err := s.db.WithContext(ctx).First(&cred, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &cred, nil
}

func (s *gormService) UpdateCredential(ctx context.Context, cred *model.Credential) error {
	return mapErr(s.db.WithContext(ctx).Save(cred).Error)
}

func (s *gormService) DeleteCredential(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&model.Credential{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCredential returns the active credential for the plan tier, falling back to the
// service's default (tier-less) credential.
func (s *gormService) FindCredential(ctx context.Context, service model.Service, planTier string) (*model.Credential, error) {
	var creds []model.Credential
	err := s.db.WithContext(ctx).
		Where("service = ? AND status = ? AND plan_tier IN ?", service, "active", []string{planTier, ""}).
		Order("updated_at desc").
		Find(&creds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	var fallback *model.Credential
	for i := range creds {
		if creds[i].PlanTier == planTier {
			return &creds[i], nil
		}
		if fallback == nil {
			fallback = &creds[i]
		}
	}
	if fallback == nil {
		return nil, ErrNotFound
	}
	return fallback, nil
}
