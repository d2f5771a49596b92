package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postlane/mailengine/internal/enum"
	internalerrors "github.com/postlane/mailengine/internal/errors"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/store/notify"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/utils"
)

type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) error

	// ClaimNextDelivery locks and returns the oldest pending delivery that
	// is not within claimGuardSeconds of its last attempt, mirroring the
	// Message claim protocol (spec.md §4.5).
	ClaimNextDelivery(ctx context.Context, claimGuardSeconds int) (*models.WebhookDelivery, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailedRetry(ctx context.Context, id string, attempts int) error
	MarkFailedTerminal(ctx context.Context, id string, attempts int) error
}

type webhookDeliveryRepository struct {
	db *gorm.DB
}

func NewWebhookDeliveryRepository(db *gorm.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{
		db: db,
	}
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookDeliveryRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	if err := notify.Emit(ctx, r.db, notify.ChannelWebhookPending, map[string]interface{}{
		"id":      delivery.ID,
		"webhook": delivery.WebhookID,
	}); err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "pg_notify failed"))
	}

	return nil
}

func (r *webhookDeliveryRepository) ClaimNextDelivery(ctx context.Context, claimGuardSeconds int) (*models.WebhookDelivery, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookDeliveryRepository.ClaimNextDelivery")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var claimed *models.WebhookDelivery
	guardCutoff := utils.Now().Add(-durationSeconds(claimGuardSeconds))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var delivery models.WebhookDelivery
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND (last_attempt_at IS NULL OR last_attempt_at < ?)",
				enum.WebhookDeliveryPending, guardCutoff).
			Order("created_at ASC").
			Limit(1).
			First(&delivery).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return internalerrors.ErrNoDeliveryReady
			}
			return err
		}

		now := utils.Now()
		delivery.Attempts++
		delivery.LastAttemptAt = &now

		if err := tx.Model(&delivery).
			Select("attempts", "last_attempt_at").
			Updates(delivery).Error; err != nil {
			return err
		}

		claimed = &delivery
		return nil
	})
	if err != nil {
		if errors.Is(err, internalerrors.ErrNoDeliveryReady) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return claimed, nil
}

func (r *webhookDeliveryRepository) MarkDelivered(ctx context.Context, id string) error {
	return r.updateStatus(ctx, "WebhookDeliveryRepository.MarkDelivered", id, map[string]interface{}{
		"status": enum.WebhookDeliveryDelivered,
	})
}

func (r *webhookDeliveryRepository) MarkFailedRetry(ctx context.Context, id string, attempts int) error {
	return r.updateStatus(ctx, "WebhookDeliveryRepository.MarkFailedRetry", id, map[string]interface{}{
		"status":   enum.WebhookDeliveryPending,
		"attempts": attempts,
	})
}

func (r *webhookDeliveryRepository) MarkFailedTerminal(ctx context.Context, id string, attempts int) error {
	return r.updateStatus(ctx, "WebhookDeliveryRepository.MarkFailedTerminal", id, map[string]interface{}{
		"status":   enum.WebhookDeliveryFailed,
		"attempts": attempts,
	})
}

func (r *webhookDeliveryRepository) updateStatus(ctx context.Context, spanName, id string, values map[string]interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, spanName)
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(values).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
