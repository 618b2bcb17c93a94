package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/internal/utils"
)

type emailThreadRepository struct {
	db *gorm.DB
}

func NewEmailThreadRepository(db *gorm.DB) interfaces.EmailThreadRepository {
	return &emailThreadRepository{
		db: db,
	}
}

func (r *emailThreadRepository) GetByID(ctx context.Context, userID, id string) (*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", id)

	if id == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var thread models.EmailThread
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &thread, nil
}

// CreateWithFirstMessage inserts the thread and stamps its first message at
// position 0 inside one transaction, so a thread id is never visible without
// its count reflecting the message.
func (r *emailThreadRepository) CreateWithFirstMessage(ctx context.Context, thread *models.EmailThread, assign interfaces.ThreadAssignment) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.CreateWithFirstMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if thread == nil || assign.MessageRowID == "" {
		return "", ErrInvalidInput
	}

	if thread.ID == "" {
		thread.ID = utils.GenerateNanoIDWithPrefix("thrd", 16)
	}
	if thread.RootMessageID != "" {
		thread.RootMessageID = strings.Trim(thread.RootMessageID, "<>")
	}

	now := utils.Now()
	thread.CreatedAt = now
	thread.UpdatedAt = now
	thread.MessageCount = 1
	messageTime := assign.MessageTime
	thread.LastMessageAt = &messageTime
	thread.Participants = utils.UniqueEmailsFold(assign.Participants)

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		tracing.TraceErr(span, tx.Error)
		return "", tx.Error
	}

	if err := tx.Create(thread).Error; err != nil {
		tx.Rollback()
		tracing.TraceErr(span, err)
		return "", err
	}

	if err := stampMessageRow(tx, assign, thread.ID, 0); err != nil {
		tx.Rollback()
		tracing.TraceErr(span, err)
		return "", err
	}

	if err := tx.Commit().Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return thread.ID, nil
}

// AssignMessage appends one message to an existing thread. The thread row is
// locked for the duration of the transaction; this is the per-account
// serialization point for concurrent deliveries into the same conversation.
func (r *emailThreadRepository) AssignMessage(ctx context.Context, userID, threadID string, assign interfaces.ThreadAssignment) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.AssignMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", threadID)

	if threadID == "" || assign.MessageRowID == "" {
		return 0, ErrInvalidInput
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		tracing.TraceErr(span, tx.Error)
		return 0, tx.Error
	}

	var thread models.EmailThread
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", threadID, userID).
		First(&thread).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tracing.TraceErr(span, ErrThreadNotFound)
			return 0, ErrThreadNotFound
		}
		tracing.TraceErr(span, err)
		return 0, err
	}

	// Position reflects arrival order at the resolver, not message date
	position := thread.MessageCount

	if err := stampMessageRow(tx, assign, threadID, position); err != nil {
		tx.Rollback()
		tracing.TraceErr(span, err)
		return 0, err
	}

	participants := thread.Participants
	for _, p := range assign.Participants {
		if !utils.ContainsFold(participants, p) {
			participants = append(participants, p)
		}
	}

	updates := map[string]interface{}{
		"message_count": gorm.Expr("message_count + 1"),
		"participants":  participants,
		"updated_at":    utils.Now(),
	}
	if thread.LastMessageAt == nil || assign.MessageTime.After(*thread.LastMessageAt) {
		updates["last_message_at"] = assign.MessageTime
	}

	result := tx.Model(&models.EmailThread{}).
		Where("id = ?", threadID).
		Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}

	if err := tx.Commit().Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	return position, nil
}

// stampMessageRow writes thread_id and thread_position onto the message record.
// The unassigned guard makes re-assignment a detectable no-op.
func stampMessageRow(tx *gorm.DB, assign interfaces.ThreadAssignment, threadID string, position int) error {
	var model interface{}
	switch assign.Direction {
	case enum.EmailInbound:
		model = &models.InboundEmail{}
	case enum.EmailOutbound:
		model = &models.OutboundEmail{}
	default:
		return errors.Errorf("unknown message direction %q", assign.Direction)
	}

	result := tx.Model(model).
		Where("id = ? AND (thread_id IS NULL OR thread_id = '')", assign.MessageRowID).
		Updates(map[string]interface{}{
			"thread_id":       threadID,
			"thread_position": position,
			"updated_at":      utils.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyAssigned
	}
	return nil
}

func (r *emailThreadRepository) FindBySubjectAndUser(ctx context.Context, subject, userID string) ([]*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.FindBySubjectAndUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var threads []*models.EmailThread

	result := r.db.WithContext(ctx).
		Where("subject = ? AND user_id = ?", subject, userID).
		Order("last_message_at DESC").
		Find(&threads)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, errors.Wrap(result.Error, "error querying threads by subject")
	}

	return threads, nil
}

func (r *emailThreadRepository) SetMessageCount(ctx context.Context, threadID string, count int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.SetMessageCount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", threadID)

	if threadID == "" {
		return ErrInvalidInput
	}

	result := r.db.WithContext(ctx).
		Model(&models.EmailThread{}).
		Where("id = ?", threadID).
		Updates(map[string]interface{}{
			"message_count": count,
			"updated_at":    utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		err := fmt.Errorf("thread with ID %s not found", threadID)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (r *emailThreadRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.EmailThread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailThreadRepository.ListByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if userID == "" {
		err := errors.New("userId cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var threads []*models.EmailThread
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&threads).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return threads, nil
}
