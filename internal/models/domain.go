package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/utils"
)

// Domain is a sending domain owned by one tenant (APIKey). Only verified
// domains may be used as a message sender; DKIM signing uses the selector
// and private key below once verified.
type Domain struct {
	ID            string     `gorm:"column:id;type:varchar(40);primaryKey" json:"id"`
	APIKeyID      string     `gorm:"column:api_key_id;type:varchar(40);index;uniqueIndex:idx_domains_api_key_domain;not null" json:"apiKeyId"`
	Domain        string     `gorm:"column:domain;type:varchar(255);uniqueIndex:idx_domains_api_key_domain;not null" json:"domain"`
	Verified      bool       `gorm:"column:verified;type:boolean;not null;default:false" json:"verified"`
	DkimSelector  string     `gorm:"column:dkim_selector;type:varchar(100)" json:"dkimSelector"`
	DkimPrivateKey string    `gorm:"column:dkim_private_key;type:text" json:"-"`
	// DkimPublicKey is stored alongside the private key at generation time
	// instead of being re-derived later (spec.md §9, DKIM key re-derivation
	// defect: re-generating a key pair to "recover" a public key discards
	// the original key material and desyncs the advertised DNS record).
	DkimPublicKey string     `gorm:"column:dkim_public_key;type:text" json:"dkimPublicKey"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamp;not null" json:"createdAt"`
	VerifiedAt    *time.Time `gorm:"column:verified_at;type:timestamp" json:"verifiedAt,omitempty"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIdWithPrefix("domain", 20)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.Now()
	}
	return nil
}

// CanSign reports whether this domain is eligible to sign outbound mail:
// it must be verified and carry a private key. Unverified or keyless
// domains send unsigned (spec.md §4.3 step 2).
func (d *Domain) CanSign() bool {
	return d.Verified && d.DkimPrivateKey != "" && d.DkimSelector != ""
}
