package repository

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/internal/utils"
)

type outboundEmailRepository struct {
	db *gorm.DB
}

func NewOutboundEmailRepository(db *gorm.DB) interfaces.OutboundEmailRepository {
	return &outboundEmailRepository{
		db: db,
	}
}

func (r *outboundEmailRepository) Create(ctx context.Context, email *models.OutboundEmail) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil {
		return "", ErrInvalidInput
	}
	if email.UserID == "" {
		err := errors.New("userId cannot be empty")
		tracing.TraceErr(span, err)
		return "", err
	}

	if email.MessageID != "" {
		email.MessageID = strings.Trim(email.MessageID, "<>")
	}
	if email.InReplyTo != "" {
		email.InReplyTo = strings.Trim(email.InReplyTo, "<>")
	}
	if email.DomainName == "" {
		email.DomainName = utils.ExtractDomainFromEmail(email.FromAddress)
	}

	if email.MessageID != "" {
		existing := &models.OutboundEmail{}
		err := r.db.WithContext(ctx).
			Where("user_id = ? AND message_id = ?", email.UserID, email.MessageID).
			First(existing).Error
		if err == nil {
			span.SetTag("duplicate", true)
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tracing.TraceErr(span, err)
			return "", err
		}
	}

	result := r.db.WithContext(ctx).Create(email)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return email.ID, nil
}

func (r *outboundEmailRepository) GetByID(ctx context.Context, id string) (*models.OutboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.OutboundEmail
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *outboundEmailRepository) GetByMessageID(ctx context.Context, userID, messageID string) (*models.OutboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	messageID = strings.Trim(messageID, "<>")

	var email models.OutboundEmail
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *outboundEmailRepository) ListByThread(ctx context.Context, userID, threadID string) ([]*models.OutboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.ListByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.OutboundEmail
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND thread_id = ?", userID, threadID).
		Order("thread_position ASC").
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *outboundEmailRepository) ListUnassigned(ctx context.Context, userID string, limit int) ([]*models.OutboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.ListUnassigned")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).
		Where("thread_id IS NULL OR thread_id = ''").
		Order("sent_at ASC").
		Limit(limit)

	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var emails []*models.OutboundEmail
	if err := query.Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *outboundEmailRepository) CountByThread(ctx context.Context, threadID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.CountByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.OutboundEmail{}).
		Where("thread_id = ?", threadID).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *outboundEmailRepository) SetDeliveryStatus(ctx context.Context, id string, status enum.DeliveryStatus, detail string, bouncedAt *time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outboundEmailRepository.SetDeliveryStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("email_id", id)
	span.SetTag("delivery_status", status.String())

	if id == "" {
		return ErrInvalidInput
	}

	updates := map[string]interface{}{
		"delivery_status": status,
		"status_detail":   detail,
		"updated_at":      utils.Now(),
	}
	if bouncedAt != nil {
		updates["bounced_at"] = bouncedAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.OutboundEmail{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		err := errors.Errorf("outbound email with ID %s not found", id)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}
