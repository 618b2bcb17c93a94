package backfill

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
)

const (
	defaultBatchSize = 100

	// pause between items so the backfill never starves live resolution of
	// the thread row locks
	interItemPause = 10 * time.Millisecond
)

type backfillService struct {
	repositories *repository.Repositories
	threading    interfaces.ThreadingService
	log          logger.Logger
}

func NewBackfillService(repositories *repository.Repositories, threading interfaces.ThreadingService, log logger.Logger) interfaces.BackfillService {
	return &backfillService{
		repositories: repositories,
		threading:    threading,
		log:          log,
	}
}

// Run resolves stored messages that never received a thread assignment,
// oldest first so reference chains resolve in natural order. Inbound messages
// go first for the same reason: replies usually arrive after the sends they
// answer. Each item fails independently; one malformed message never stops
// the sweep.
func (s *backfillService) Run(ctx context.Context, req dto.BackfillRequest) (*dto.BackfillResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backfillService.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("user_id", req.UserID)

	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}

	result := &dto.BackfillResult{}

	if err := s.sweepInbound(ctx, req, result); err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	if err := s.sweepOutbound(ctx, req, result); err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}

	if req.UserID != "" {
		if err := s.repairCounts(ctx, req.UserID, result); err != nil {
			tracing.TraceErr(span, err)
			return result, err
		}
	}

	s.log.Infof("backfill finished: processed=%d threadsCreated=%d repaired=%d errors=%d", result.Processed, result.ThreadsCreated, result.Repaired, result.Errors)
	return result, nil
}

func (s *backfillService) sweepInbound(ctx context.Context, req dto.BackfillRequest, result *dto.BackfillResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backfillService.sweepInbound")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	// Failed rows stay unassigned; remembering them widens the next fetch so
	// the sweep pages past a persistently failing head instead of refetching
	// it forever.
	failed := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.reachedCap(req, result) {
			return nil
		}

		fetchLimit := req.BatchSize + len(failed)
		batch, err := s.repositories.InboundEmailRepository.ListUnassigned(ctx, req.UserID, fetchLimit)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, email := range batch {
			if _, skip := failed[email.ID]; skip {
				continue
			}
			if s.reachedCap(req, result) {
				return nil
			}
			result.Processed++
			resolution, err := s.threading.ResolveInbound(ctx, email, interfaces.ResolveOptions{})
			if err != nil {
				result.Errors++
				failed[email.ID] = struct{}{}
				s.log.Warnf("backfill: inbound %s failed to resolve: %v", email.ID, err)
			} else if resolution.IsNewThread {
				result.ThreadsCreated++
			}
			time.Sleep(interItemPause)
		}

		// A short batch means the unassigned set is drained
		if len(batch) < fetchLimit {
			return nil
		}
	}
}

func (s *backfillService) sweepOutbound(ctx context.Context, req dto.BackfillRequest, result *dto.BackfillResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backfillService.sweepOutbound")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	failed := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.reachedCap(req, result) {
			return nil
		}

		fetchLimit := req.BatchSize + len(failed)
		batch, err := s.repositories.OutboundEmailRepository.ListUnassigned(ctx, req.UserID, fetchLimit)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, email := range batch {
			if _, skip := failed[email.ID]; skip {
				continue
			}
			if s.reachedCap(req, result) {
				return nil
			}
			result.Processed++
			resolution, err := s.threading.ResolveOutbound(ctx, email, interfaces.ResolveOptions{})
			if err != nil {
				result.Errors++
				failed[email.ID] = struct{}{}
				s.log.Warnf("backfill: outbound %s failed to resolve: %v", email.ID, err)
			} else if resolution.IsNewThread {
				result.ThreadsCreated++
			}
			time.Sleep(interItemPause)
		}

		if len(batch) < fetchLimit {
			return nil
		}
	}
}

func (s *backfillService) reachedCap(req dto.BackfillRequest, result *dto.BackfillResult) bool {
	return req.MaxItems > 0 && result.Processed >= req.MaxItems
}

// repairCounts restores the message_count aggregate where it diverged from the
// actual number of rows pointing at the thread. Runs per account; an
// account-less sweep skips it.
func (s *backfillService) repairCounts(ctx context.Context, userID string, result *dto.BackfillResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backfillService.repairCounts")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	const pageSize = 200
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		threads, err := s.repositories.EmailThreadRepository.ListByUser(ctx, userID, pageSize, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if len(threads) == 0 {
			return nil
		}

		for _, thread := range threads {
			inboundCount, err := s.repositories.InboundEmailRepository.CountByThread(ctx, thread.ID)
			if err != nil {
				tracing.TraceErr(span, err)
				result.Errors++
				continue
			}
			outboundCount, err := s.repositories.OutboundEmailRepository.CountByThread(ctx, thread.ID)
			if err != nil {
				tracing.TraceErr(span, err)
				result.Errors++
				continue
			}

			actual := int(inboundCount + outboundCount)
			if actual == thread.MessageCount {
				continue
			}

			s.log.Warnf("backfill: thread %s message_count %d diverged from actual %d, repairing", thread.ID, thread.MessageCount, actual)
			if err := s.repositories.EmailThreadRepository.SetMessageCount(ctx, thread.ID, actual); err != nil {
				tracing.TraceErr(span, err)
				result.Errors++
				continue
			}
			result.Repaired++
		}

		if len(threads) < pageSize {
			return nil
		}
		offset += pageSize
	}
}
