package db

import (
	"context"
	"fmt"

	"toolbroker/internal/model"
)

func (s *gormService) CreateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	return mapErr(s.db.WithContext(ctx).Create(sub).Error)
}

func (s *gormService) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	if err := s.db.WithContext(ctx).Order("id asc").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subs, nil
}

func (s *gormService) GetSubscriber(ctx context.Context, id uint) (*model.Subscriber, error) {
	var sub model.Subscriber
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &sub, nil
}

func (s *gormService) UpdateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	return mapErr(s.db.WithContext(ctx).Save(sub).Error)
}

func (s *gormService) DeleteSubscriber(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&model.Subscriber{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormService) FindSubscriberByKey(ctx context.Context, key string) (*model.Subscriber, error) {
	var sub model.Subscriber
	if err := s.db.WithContext(ctx).Where("api_key = ?", key).First(&sub).Error; err != nil {
		return nil, mapErr(err)
	}
	return &sub, nil
}
