package threading

import (
	"context"
	"sort"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/enum"
	er "github.com/inboundly/mailcore/internal/errors"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
)

type threadingService struct {
	repositories *repository.Repositories
	log          logger.Logger
}

func NewThreadingService(repositories *repository.Repositories, log logger.Logger) interfaces.ThreadingService {
	return &threadingService{
		repositories: repositories,
		log:          log,
	}
}

func (s *threadingService) ResolveInbound(ctx context.Context, email *models.InboundEmail, opts interfaces.ResolveOptions) (*dto.ThreadResolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.ResolveInbound")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentService(span)

	if email == nil {
		err := errors.New("email is nil")
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagEntity(span, email.ID)

	if email.UserID == "" {
		tracing.TraceErr(span, er.ErrUserIdMissing)
		return nil, er.ErrUserIdMissing
	}

	// Re-delivery of an already threaded message is a no-op
	if email.IsAssigned() {
		return &dto.ThreadResolution{
			ThreadID:       email.ThreadID,
			ThreadPosition: email.ThreadPosition,
			IsNewThread:    false,
		}, nil
	}

	in := resolveInput{
		userID: email.UserID,
		refs:   ExtractReferences(InboundHeaders(email)),
		assign: interfaces.ThreadAssignment{
			Direction:    enum.EmailInbound,
			MessageRowID: email.ID,
			MessageTime:  email.ReceivedAt,
			Participants: validParticipants(email.AllParticipants()),
		},
		opts: opts,
	}

	resolution, err := s.resolve(ctx, in)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	email.ThreadID = resolution.ThreadID
	email.ThreadPosition = resolution.ThreadPosition

	return resolution, nil
}

func (s *threadingService) ResolveOutbound(ctx context.Context, email *models.OutboundEmail, opts interfaces.ResolveOptions) (*dto.ThreadResolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.ResolveOutbound")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentService(span)

	if email == nil {
		err := errors.New("email is nil")
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagEntity(span, email.ID)

	if email.UserID == "" {
		tracing.TraceErr(span, er.ErrUserIdMissing)
		return nil, er.ErrUserIdMissing
	}

	if email.IsAssigned() {
		return &dto.ThreadResolution{
			ThreadID:       email.ThreadID,
			ThreadPosition: email.ThreadPosition,
			IsNewThread:    false,
		}, nil
	}

	in := resolveInput{
		userID: email.UserID,
		refs:   ExtractReferences(OutboundHeaders(email)),
		assign: interfaces.ThreadAssignment{
			Direction:    enum.EmailOutbound,
			MessageRowID: email.ID,
			MessageTime:  email.SentAt,
			Participants: validParticipants(email.AllParticipants()),
		},
		opts: opts,
	}

	resolution, err := s.resolve(ctx, in)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	email.ThreadID = resolution.ThreadID
	email.ThreadPosition = resolution.ThreadPosition

	return resolution, nil
}

// resolve runs the matching ladder and applies the assignment. The repository
// guards the message row against double assignment, so a concurrent resolver
// losing the race surfaces as ErrAlreadyAssigned and is reported as a no-op
// with the winner's placement.
func (s *threadingService) resolve(ctx context.Context, in resolveInput) (*dto.ThreadResolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.resolve")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	threadID, err := s.findExistingThread(ctx, in)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if threadID == "" {
		newThreadID, err := s.createNewThread(ctx, in)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return &dto.ThreadResolution{
			ThreadID:       newThreadID,
			ThreadPosition: 0,
			IsNewThread:    true,
		}, nil
	}

	position, err := s.repositories.EmailThreadRepository.AssignMessage(ctx, in.userID, threadID, in.assign)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyAssigned) {
			return s.resolutionFromRow(ctx, in)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &dto.ThreadResolution{
		ThreadID:       threadID,
		ThreadPosition: position,
		IsNewThread:    false,
	}, nil
}

// resolutionFromRow reloads a message row after losing an assignment race and
// reports the placement the winner gave it.
func (s *threadingService) resolutionFromRow(ctx context.Context, in resolveInput) (*dto.ThreadResolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.resolutionFromRow")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	switch in.assign.Direction {
	case enum.EmailInbound:
		row, err := s.repositories.InboundEmailRepository.GetByID(ctx, in.assign.MessageRowID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if row == nil {
			return nil, er.ErrMessageNotFound
		}
		return &dto.ThreadResolution{ThreadID: row.ThreadID, ThreadPosition: row.ThreadPosition}, nil
	case enum.EmailOutbound:
		row, err := s.repositories.OutboundEmailRepository.GetByID(ctx, in.assign.MessageRowID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if row == nil {
			return nil, er.ErrMessageNotFound
		}
		return &dto.ThreadResolution{ThreadID: row.ThreadID, ThreadPosition: row.ThreadPosition}, nil
	default:
		return nil, er.ErrInvalidDirection
	}
}

func (s *threadingService) GetThread(ctx context.Context, userID, threadID string) (*dto.ThreadView, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.GetThread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentService(span)
	tracing.TagEntity(span, threadID)

	if userID == "" {
		tracing.TraceErr(span, er.ErrUserIdMissing)
		return nil, er.ErrUserIdMissing
	}

	thread, err := s.repositories.EmailThreadRepository.GetByID(ctx, userID, threadID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if thread == nil {
		return nil, er.ErrThreadNotFound
	}

	inbound, err := s.repositories.InboundEmailRepository.ListByThread(ctx, userID, threadID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	outbound, err := s.repositories.OutboundEmailRepository.ListByThread(ctx, userID, threadID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	messages := make([]dto.ThreadMessage, 0, len(inbound)+len(outbound))
	for _, email := range inbound {
		messages = append(messages, dto.ThreadMessage{
			ID:             email.ID,
			MessageID:      email.MessageID,
			Direction:      enum.EmailInbound,
			Subject:        email.Subject,
			FromAddress:    email.FromAddress,
			ToAddresses:    email.ToAddresses,
			SentAt:         email.ReceivedAt,
			ThreadPosition: email.ThreadPosition,
		})
	}
	for _, email := range outbound {
		messages = append(messages, dto.ThreadMessage{
			ID:             email.ID,
			MessageID:      email.MessageID,
			Direction:      enum.EmailOutbound,
			Subject:        email.Subject,
			FromAddress:    email.FromAddress,
			ToAddresses:    email.ToAddresses,
			SentAt:         email.SentAt,
			ThreadPosition: email.ThreadPosition,
			DeliveryStatus: email.DeliveryStatus,
		})
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ThreadPosition < messages[j].ThreadPosition
	})

	return &dto.ThreadView{
		ID:            thread.ID,
		Subject:       thread.Subject,
		RootMessageID: thread.RootMessageID,
		Participants:  thread.Participants,
		MessageCount:  thread.MessageCount,
		LastMessageAt: thread.LastMessageAt,
		Messages:      messages,
	}, nil
}
