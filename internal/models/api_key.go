package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/utils"
)

// APIKey is the tenant: it authenticates requests and owns every other
// entity (domains, messages, suppressions, webhooks). Identity is
// immutable; only metadata (name, last_used_at) is soft-updatable.
type APIKey struct {
	ID                 string     `gorm:"column:id;type:varchar(40);primaryKey" json:"id"`
	KeyHash            string     `gorm:"column:key_hash;type:varchar(128);uniqueIndex;not null" json:"-"`
	Name               string     `gorm:"column:name;type:varchar(255)" json:"name"`
	RateLimitPerSecond float64    `gorm:"column:rate_limit_per_second;not null;default:10" json:"rateLimitPerSecond"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamp;not null" json:"createdAt"`
	LastUsedAt         *time.Time `gorm:"column:last_used_at;type:timestamp" json:"lastUsedAt,omitempty"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = utils.GenerateNanoIdWithPrefix("key", 20)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = utils.Now()
	}
	if k.RateLimitPerSecond <= 0 {
		k.RateLimitPerSecond = 10
	}
	return nil
}
