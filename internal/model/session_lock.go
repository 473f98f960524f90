package model

import "time"

// TrendTrackProfile is the single shared automation profile guarded by the session lock.
const TrendTrackProfile = "trendtrack-profile"

// SessionLock records one checkout window of an exclusive shared resource.
type SessionLock struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	ResourceID string    `gorm:"type:varchar(100);not null;index"`
	HolderID   string    `gorm:"type:varchar(255);not null"`
	StartTime  time.Time `gorm:"not null;index"`
	EndTime    time.Time `gorm:"not null"`
}
