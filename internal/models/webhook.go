package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/utils"
)

// Webhook is a per-tenant registration of an endpoint subscribed to a set
// of events. Inactive webhooks are skipped by the dispatcher.
type Webhook struct {
	ID        string         `gorm:"column:id;type:varchar(40);primaryKey" json:"id"`
	APIKeyID  string         `gorm:"column:api_key_id;type:varchar(40);index;not null" json:"apiKeyId"`
	URL       string         `gorm:"column:url;type:varchar(2048);not null" json:"url"`
	Events    pq.StringArray `gorm:"column:events;type:text[]" json:"events"`
	Secret    string         `gorm:"column:secret;type:varchar(255);not null" json:"-"`
	Active    bool           `gorm:"column:active;type:boolean;not null;default:true" json:"active"`
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;not null" json:"createdAt"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

func (w *Webhook) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = utils.GenerateNanoIdWithPrefix("wh", 20)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = utils.Now()
	}
	return nil
}

// Subscribes reports whether this webhook is active and subscribed to the
// given event type.
func (w *Webhook) Subscribes(event enum.WebhookEventType) bool {
	if !w.Active {
		return false
	}
	for _, e := range w.Events {
		if e == string(event) {
			return true
		}
	}
	return false
}
