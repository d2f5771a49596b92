package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/utils"
)

// WebhookDelivery is one attempt record per (webhook, event) occurrence.
// Destroyed only by cascade when its parent webhook is deleted.
type WebhookDelivery struct {
	ID            string                       `gorm:"column:id;type:varchar(40);primaryKey" json:"id"`
	WebhookID     string                       `gorm:"column:webhook_id;type:varchar(40);index;not null" json:"webhookId"`
	MessageID     *string                      `gorm:"column:message_id;type:varchar(40);index" json:"messageId,omitempty"`
	Event         enum.WebhookEventType        `gorm:"column:event;type:varchar(50);not null" json:"event"`
	Payload       JSONMap                      `gorm:"column:payload;type:jsonb" json:"payload"`
	Status        enum.WebhookDeliveryStatus   `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	Attempts      int                          `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time                   `gorm:"column:last_attempt_at;type:timestamp" json:"lastAttemptAt,omitempty"`
	CreatedAt     time.Time                    `gorm:"column:created_at;type:timestamp;not null" json:"createdAt"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

func (d *WebhookDelivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIdWithPrefix("whd", 20)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.Now()
	}
	if d.Status == "" {
		d.Status = enum.WebhookDeliveryPending
	}
	return nil
}
