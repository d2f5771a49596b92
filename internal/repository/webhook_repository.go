package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/tracing"
)

type WebhookRepository interface {
	Create(ctx context.Context, webhook *models.Webhook) error
	GetByID(ctx context.Context, id string) (*models.Webhook, error)
	List(ctx context.Context, apiKeyID string) ([]models.Webhook, error)

	// ListActiveSubscribers returns every active webhook owned by apiKeyID
	// that subscribes to event, used by the Email Worker's webhook fan-out
	// step (spec.md §4.4).
	ListActiveSubscribers(ctx context.Context, apiKeyID string, event enum.WebhookEventType) ([]models.Webhook, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type webhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{
		db: db,
	}
}

func (r *webhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(webhook).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *webhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var webhook models.Webhook
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&webhook).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &webhook, nil
}

func (r *webhookRepository) List(ctx context.Context, apiKeyID string) ([]models.Webhook, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var webhooks []models.Webhook
	if err := r.db.WithContext(ctx).Where("api_key_id = ?", apiKeyID).Find(&webhooks).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return webhooks, nil
}

func (r *webhookRepository) ListActiveSubscribers(ctx context.Context, apiKeyID string, event enum.WebhookEventType) ([]models.Webhook, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookRepository.ListActiveSubscribers")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("event", event.String())

	var candidates []models.Webhook
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND active = ?", apiKeyID, true).
		Find(&candidates).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	subscribers := make([]models.Webhook, 0, len(candidates))
	for _, w := range candidates {
		if w.Subscribes(event) {
			subscribers = append(subscribers, w)
		}
	}

	return subscribers, nil
}

func (r *webhookRepository) SetActive(ctx context.Context, id string, active bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookRepository.SetActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("id = ?", id).
		Update("active", active).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *webhookRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Webhook{}).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
