package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Subscriber is a paying customer as mirrored from the billing system.
type Subscriber struct {
	gorm.Model
	APIKey    string     `gorm:"type:varchar(255);uniqueIndex;not null"`
	Email     string     `gorm:"type:varchar(255);not null"`
	PlanTier  string     `gorm:"type:varchar(50);default:'';not null"`
	Services  string     `gorm:"type:varchar(255);not null"` // comma separated
	Status    string     `gorm:"type:varchar(50);default:'active';not null"`
	ExpiresAt *time.Time `gorm:"default:null"`
}

// Entitled reports whether the subscriber's plan includes svc.
func (s Subscriber) Entitled(svc Service) bool {
	for _, name := range strings.Split(s.Services, ",") {
		if Service(strings.TrimSpace(name)) == svc {
			return true
		}
	}
	return false
}

// Active reports whether the subscription is usable at t.
func (s Subscriber) Active(t time.Time) bool {
	if s.Status != "active" {
		return false
	}
	return s.ExpiresAt == nil || t.Before(*s.ExpiresAt)
}

// Owner returns the context stamped onto codes issued for this subscriber.
func (s Subscriber) Owner() OwnerContext {
	return OwnerContext{SubscriberID: s.ID, Email: s.Email, PlanTier: s.PlanTier}
}
