package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/utils"
)

type DomainRepository interface {
	RegisterDomain(ctx context.Context, apiKeyID, domain string) (*models.Domain, error)
	CheckDomainOwnership(ctx context.Context, apiKeyID, domain string) (bool, error)
	GetDomain(ctx context.Context, apiKeyID, domain string) (*models.Domain, error)
	GetVerifiedDomains(ctx context.Context, apiKeyID string) ([]models.Domain, error)
	MarkVerified(ctx context.Context, apiKeyID, domain string) error
	SetDkimKeys(ctx context.Context, apiKeyID, domain, selector, dkimPublic, dkimPrivate string) error
	GetDomainForTenant(ctx context.Context, apiKeyID, domain string) (*models.Domain, error)
	GetAllVerifiedDomainsCrossTenant(ctx context.Context) ([]models.Domain, error)
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) RegisterDomain(ctx context.Context, apiKeyID, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.RegisterDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	d := models.Domain{
		APIKeyID: apiKeyID,
		Domain:   domain,
	}

	if err := r.db.WithContext(ctx).Create(&d).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &d, nil
}

func (r *domainRepository) CheckDomainOwnership(ctx context.Context, apiKeyID, domain string) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.CheckDomainOwnership")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	var d models.Domain
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND domain = ?", apiKeyID, domain).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("response.exists", false))
			return false, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}

	span.LogFields(tracingLog.Bool("response.exists", true))
	return true, nil
}

func (r *domainRepository) GetVerifiedDomains(ctx context.Context, apiKeyID string) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetVerifiedDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND verified = ?", apiKeyID, true).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

func (r *domainRepository) MarkVerified(ctx context.Context, apiKeyID, domain string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.MarkVerified")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("api_key_id = ? AND domain = ?", apiKeyID, domain).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *domainRepository) SetDkimKeys(ctx context.Context, apiKeyID, domain, selector, dkimPublic, dkimPrivate string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetDkimKeys")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("api_key_id = ? AND domain = ?", apiKeyID, domain).
		Updates(map[string]interface{}{
			"dkim_selector":    selector,
			"dkim_public_key":  dkimPublic,
			"dkim_private_key": dkimPrivate,
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *domainRepository) GetDomain(ctx context.Context, apiKeyID, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	var d models.Domain
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND domain = ?", apiKeyID, domain).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &d, nil
}

// GetDomainForTenant resolves a message's From domain to its signing key,
// scoped to the owning tenant (spec.md §4.3 step 2: "look it up for the
// tenant"). domains is unique only on (api_key_id, domain), so two
// different tenants may legitimately hold a row for the same domain
// string; omitting the api_key_id filter would risk signing one tenant's
// message with another tenant's verified key.
func (r *domainRepository) GetDomainForTenant(ctx context.Context, apiKeyID, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomainForTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	var d models.Domain
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND domain = ?", apiKeyID, domain).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &d, nil
}

func (r *domainRepository) GetAllVerifiedDomainsCrossTenant(ctx context.Context) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetAllVerifiedDomainsCrossTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("verified = ?", true).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}
