package model

import (
	"time"

	"gorm.io/gorm"
)

// CredentialPayload is the upstream session material for one shared tool account.
type CredentialPayload struct {
	Cookies map[string]string `json:"cookies,omitempty"`
	Tokens  map[string]string `json:"tokens,omitempty"`
}

// Credential is the operator's stored upstream account for a service.
// An empty PlanTier marks the default account for the service.
type Credential struct {
	gorm.Model
	Service  Service           `gorm:"type:varchar(50);not null;index"`
	PlanTier string            `gorm:"type:varchar(50);default:'';not null"`
	Label    string            `gorm:"type:varchar(255)"`
	Payload  CredentialPayload `gorm:"serializer:json;type:text;not null"`
	Status   string            `gorm:"type:varchar(50);default:'active';not null"`
}

// Grant is the credential bundle handed to a client after a successful redemption.
type Grant struct {
	Service  Service           `json:"service"`
	IssuedAt time.Time         `json:"issuedAt"`
	Payload  CredentialPayload `json:"payload"`
}
