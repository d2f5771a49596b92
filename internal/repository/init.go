package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/models"
)

type Repositories struct {
	APIKeyRepository          APIKeyRepository
	DomainRepository          DomainRepository
	MessageRepository         MessageRepository
	SuppressionRepository     SuppressionRepository
	WebhookRepository         WebhookRepository
	WebhookDeliveryRepository WebhookDeliveryRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		APIKeyRepository:          NewAPIKeyRepository(db),
		DomainRepository:          NewDomainRepository(db),
		MessageRepository:         NewMessageRepository(db),
		SuppressionRepository:     NewSuppressionRepository(db),
		WebhookRepository:         NewWebhookRepository(db),
		WebhookDeliveryRepository: NewWebhookDeliveryRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.APIKey{},
		&models.Domain{},
		&models.Message{},
		&models.Suppression{},
		&models.Webhook{},
		&models.WebhookDelivery{},
	)

	sqlDB.Close()

	sqlDB, _ = db.DB()
	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
