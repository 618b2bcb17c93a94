package repository

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/tracing"
)

type mailDomainRepository struct {
	db *gorm.DB
}

func NewMailDomainRepository(db *gorm.DB) interfaces.DirectoryRepository {
	return &mailDomainRepository{
		db: db,
	}
}

func (r *mailDomainRepository) GetDomain(ctx context.Context, domainName string) (*models.MailDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailDomainRepository.GetDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" {
		return nil, nil
	}

	var domain models.MailDomain
	if err := r.db.WithContext(ctx).
		Where("domain_name = ?", domainName).
		First(&domain).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &domain, nil
}

func (r *mailDomainRepository) ListDomainsByUser(ctx context.Context, userID string) ([]*models.MailDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailDomainRepository.ListDomainsByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []*models.MailDomain
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&domains).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return domains, nil
}

func (r *mailDomainRepository) Create(ctx context.Context, domain *models.MailDomain) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailDomainRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if domain == nil || domain.DomainName == "" || domain.UserID == "" {
		return "", ErrInvalidInput
	}

	domain.DomainName = strings.ToLower(strings.TrimSpace(domain.DomainName))

	if err := r.db.WithContext(ctx).Create(domain).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return domain.ID, nil
}
