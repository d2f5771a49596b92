package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/utils"
)

type APIKeyRepository interface {
	Create(ctx context.Context, apiKey *models.APIKey) error
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	GetByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
}

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{
		db: db,
	}
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "APIKeyRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(apiKey).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *apiKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "APIKeyRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var apiKey models.APIKey
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &apiKey, nil
}

func (r *apiKeyRepository) GetByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "APIKeyRepository.GetByKeyHash")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var apiKey models.APIKey
	err := r.db.WithContext(ctx).
		Where("key_hash = ?", keyHash).
		First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &apiKey, nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "APIKeyRepository.TouchLastUsed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	now := utils.Now()
	err := r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
