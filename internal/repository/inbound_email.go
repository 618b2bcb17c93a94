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

type inboundEmailRepository struct {
	db *gorm.DB
}

func NewInboundEmailRepository(db *gorm.DB) interfaces.InboundEmailRepository {
	return &inboundEmailRepository{
		db: db,
	}
}

func (r *inboundEmailRepository) Create(ctx context.Context, email *models.InboundEmail) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboundEmailRepository.Create")
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

	// Duplicate capture of the same message is a no-op
	if email.MessageID != "" {
		existing := &models.InboundEmail{}
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

func (r *inboundEmailRepository) GetByID(ctx context.Context, id string) (*models.InboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboundEmailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.InboundEmail
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *inboundEmailRepository) GetByMessageID(ctx context.Context, userID, messageID string) (*models.InboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboundEmailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	messageID = strings.Trim(messageID, "<>")

	var email models.InboundEmail
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

func (r *inboundEmailRepository) ListByThread(ctx context.Context, userID, threadID string) ([]*models.InboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboundEmailRepository.ListByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.InboundEmail
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND thread_id = ?", userID, threadID).
		Order("thread_position ASC").
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *inboundEmailRepository) ListUnassigned(ctx context.Context, userID string, limit int) ([]*models.InboundEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboundEmailRepository.ListUnassigned")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).
		Where("thread_id IS NULL OR thread_id = ''").
		Order("received_at ASC").
		Limit(limit)

	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var emails []*models.InboundEmail
	if err := query.Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *inboundEmailRepository) CountByThread(ctx context.Context, threadID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboundEmailRepository.CountByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InboundEmail{}).
		Where("thread_id = ?", threadID).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
