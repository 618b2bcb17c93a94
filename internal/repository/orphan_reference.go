package repository

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/tracing"
)

type orphanReferenceRepository struct {
	db *gorm.DB
}

func NewOrphanReferenceRepository(db *gorm.DB) interfaces.OrphanReferenceRepository {
	return &orphanReferenceRepository{
		db: db,
	}
}

func (r *orphanReferenceRepository) Create(ctx context.Context, orphan *models.OrphanReference) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "orphanReferenceRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if orphan == nil || orphan.MessageID == "" {
		return "", ErrInvalidInput
	}

	orphan.MessageID = strings.Trim(orphan.MessageID, "<>")

	// One record per referenced message id per account
	existing := &models.OrphanReference{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", orphan.UserID, orphan.MessageID).
		First(existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return "", err
	}

	if err := r.db.WithContext(ctx).Create(orphan).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return orphan.ID, nil
}

func (r *orphanReferenceRepository) GetByMessageID(ctx context.Context, userID, messageID string) (*models.OrphanReference, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "orphanReferenceRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	messageID = strings.Trim(messageID, "<>")

	var orphan models.OrphanReference
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		First(&orphan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &orphan, nil
}

func (r *orphanReferenceRepository) DeleteByThreadID(ctx context.Context, threadID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "orphanReferenceRepository.DeleteByThreadID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", threadID)

	if threadID == "" {
		return ErrInvalidInput
	}

	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&models.OrphanReference{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *orphanReferenceRepository) DeleteOlderThan(ctx context.Context, cutoffDate time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "orphanReferenceRepository.DeleteOlderThan")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).
		Where("created_at < ?", cutoffDate).
		Delete(&models.OrphanReference{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
