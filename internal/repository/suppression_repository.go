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

type SuppressionRepository interface {
	Create(ctx context.Context, suppression *models.Suppression) error
	IsSuppressed(ctx context.Context, apiKeyID, email string) (bool, error)
	Get(ctx context.Context, apiKeyID, email string) (*models.Suppression, error)
	List(ctx context.Context, apiKeyID string, limit, offset int) ([]models.Suppression, int64, error)
	Delete(ctx context.Context, apiKeyID, email string) error
}

type suppressionRepository struct {
	db *gorm.DB
}

func NewSuppressionRepository(db *gorm.DB) SuppressionRepository {
	return &suppressionRepository{
		db: db,
	}
}

func (r *suppressionRepository) Create(ctx context.Context, suppression *models.Suppression) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	suppression.Email = utils.NormalizeEmail(suppression.Email)

	existing, err := r.Get(ctx, suppression.APIKeyID, suppression.Email)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if existing != nil {
		span.SetTag("duplicate", true)
		return nil
	}

	if err := r.db.WithContext(ctx).Create(suppression).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *suppressionRepository) IsSuppressed(ctx context.Context, apiKeyID, email string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.IsSuppressed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Suppression{}).
		Where("api_key_id = ? AND email = ?", apiKeyID, utils.NormalizeEmail(email)).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}

	return count > 0, nil
}

func (r *suppressionRepository) Get(ctx context.Context, apiKeyID, email string) (*models.Suppression, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var suppression models.Suppression
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND email = ?", apiKeyID, utils.NormalizeEmail(email)).
		First(&suppression).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &suppression, nil
}

func (r *suppressionRepository) List(ctx context.Context, apiKeyID string, limit, offset int) ([]models.Suppression, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var suppressions []models.Suppression
	var count int64

	if err := r.db.WithContext(ctx).Model(&models.Suppression{}).
		Where("api_key_id = ?", apiKeyID).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Where("api_key_id = ?", apiKeyID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&suppressions).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, 0, err
	}

	return suppressions, count, nil
}

func (r *suppressionRepository) Delete(ctx context.Context, apiKeyID, email string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND email = ?", apiKeyID, utils.NormalizeEmail(email)).
		Delete(&models.Suppression{}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
