package model

import "time"

// OwnerContext identifies the subscriber that requested a code.
type OwnerContext struct {
	SubscriberID uint   `json:"subscriber_id"`
	Email        string `json:"email"`
	PlanTier     string `json:"plan_tier"`
}

// AuthCode is a short-lived, single-use code exchanged for a Grant.
type AuthCode struct {
	Code       string     `gorm:"type:varchar(64);primaryKey"`
	Service    Service    `gorm:"type:varchar(50);not null;index"`
	OwnerID    uint       `gorm:"index"`
	OwnerEmail string     `gorm:"type:varchar(255)"`
	PlanTier   string     `gorm:"type:varchar(50)"`
	IssuedAt   time.Time  `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"not null;index"`
	ConsumedAt *time.Time `gorm:"default:null"`
}

// Owner returns the issuing subscriber context.
func (a AuthCode) Owner() OwnerContext {
	return OwnerContext{SubscriberID: a.OwnerID, Email: a.OwnerEmail, PlanTier: a.PlanTier}
}

// Consumed reports whether the code has already been redeemed.
func (a AuthCode) Consumed() bool {
	return a.ConsumedAt != nil
}

// ExpiredAt reports whether the code is past its TTL at t.
func (a AuthCode) ExpiredAt(t time.Time) bool {
	return !t.Before(a.ExpiresAt)
}
