package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/utils"
)

// Suppression is a (api_key_id, email) entry that terminates any subsequent
// send to that recipient as rejected. Created automatically on a hard
// bounce, or explicitly by the tenant; destroyed only by explicit action.
type Suppression struct {
	ID        string                  `gorm:"column:id;type:varchar(40);primaryKey" json:"id"`
	APIKeyID  string                  `gorm:"column:api_key_id;type:varchar(40);index;uniqueIndex:idx_suppressions_api_key_email;not null" json:"apiKeyId"`
	Email     string                  `gorm:"column:email;type:varchar(255);uniqueIndex:idx_suppressions_api_key_email;not null" json:"email"`
	Reason    enum.SuppressionReason  `gorm:"column:reason;type:varchar(20);not null" json:"reason"`
	CreatedAt time.Time               `gorm:"column:created_at;type:timestamp;not null" json:"createdAt"`
}

func (Suppression) TableName() string {
	return "suppressions"
}

func (s *Suppression) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIdWithPrefix("supp", 20)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.Now()
	}
	s.Email = utils.NormalizeEmail(s.Email)
	return nil
}
