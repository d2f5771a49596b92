package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/utils"
)

// Message is a single outbound email (or, per the type field, a future
// non-email channel). The Email Worker drives it through the state machine
// documented on enum.MessageStatus.
type Message struct {
	ID             string             `gorm:"column:id;type:varchar(40);primaryKey" json:"id"`
	APIKeyID       string             `gorm:"column:api_key_id;type:varchar(40);index;uniqueIndex:idx_messages_api_key_idempotency_key;not null" json:"apiKeyId"`
	IdempotencyKey *string            `gorm:"column:idempotency_key;type:varchar(255);uniqueIndex:idx_messages_api_key_idempotency_key" json:"idempotencyKey,omitempty"`
	Type           enum.MessageType   `gorm:"column:type;type:varchar(20);not null;default:'email'" json:"type"`
	Status         enum.MessageStatus `gorm:"column:status;type:varchar(20);index;not null;default:'queued'" json:"status"`

	FromAddress string `gorm:"column:from_address;type:varchar(255);not null" json:"fromAddress"`
	ToAddress   string `gorm:"column:to_address;type:varchar(255);not null;index" json:"toAddress"`
	Subject     string `gorm:"column:subject;type:varchar(998)" json:"subject,omitempty"`
	BodyText    string `gorm:"column:body;type:text" json:"body,omitempty"`
	BodyHTML    string `gorm:"column:html_body;type:text" json:"htmlBody,omitempty"`

	Metadata JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	Attempts       int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	FailureReason  string     `gorm:"column:failure_reason;type:text" json:"failureReason,omitempty"`
	SMTPMessageID  string     `gorm:"column:smtp_message_id;type:varchar(255)" json:"smtpMessageId,omitempty"`
	LastAttemptAt  *time.Time `gorm:"column:last_attempt_at;type:timestamp" json:"lastAttemptAt,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp;not null;index" json:"createdAt"`
	SentAt      *time.Time `gorm:"column:sent_at;type:timestamp" json:"sentAt,omitempty"`
	DeliveredAt *time.Time `gorm:"column:delivered_at;type:timestamp" json:"deliveredAt,omitempty"`
	FailedAt    *time.Time `gorm:"column:failed_at;type:timestamp" json:"failedAt,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIdWithPrefix("msg", 24)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.Now()
	}
	if m.Type == "" {
		m.Type = enum.MessageTypeEmail
	}
	if m.Status == "" {
		m.Status = enum.MessageStatusQueued
	}
	// Suppression lookups normalize the recipient the same way (spec.md
	// §9); skipping it here would let a differently-cased address dodge
	// an existing suppression entry.
	m.ToAddress = utils.NormalizeEmail(m.ToAddress)
	m.FromAddress = utils.NormalizeEmail(m.FromAddress)
	return nil
}

// HasContent reports whether the message carries a text or HTML body.
func (m *Message) HasContent() bool {
	return m.BodyText != "" || m.BodyHTML != ""
}
