package threading

import (
	"context"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/internal/utils"
)

// resolveInput is one message's worth of matching state: the normalized
// reference set plus the assignment the repository will apply.
type resolveInput struct {
	userID string
	refs   ReferenceSet
	assign interfaces.ThreadAssignment
	opts   interfaces.ResolveOptions
}

// findExistingThread walks the matching ladder: orphan records first, then the
// reference chain newest entry first, then the opt-in subject heuristic.
// An empty result means a new thread is needed.
func (s *threadingService) findExistingThread(ctx context.Context, in resolveInput) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.findExistingThread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	// Case 1: a previously threaded message referenced this one before it
	// arrived. Joining its thread keeps chains transitive under out-of-order
	// delivery.
	threadID, err := s.checkOrphanReference(ctx, in)
	if err != nil {
		return "", err
	}
	if threadID != "" {
		return threadID, nil
	}

	// Case 2: walk the reference chain backwards from the most recent entry.
	// The immediate parent may be missing from the store (sent outside the
	// platform, or history predating capture); any stored ancestor is enough.
	for i := len(in.refs.References) - 1; i >= 0; i-- {
		messageID := in.refs.References[i]

		threadID, err := s.findThreadByMessageID(ctx, in.userID, messageID)
		if err != nil {
			tracing.TraceErr(span, err)
			return "", err
		}
		if threadID != "" {
			if i < len(in.refs.References)-1 {
				// Matched through a non-immediate ancestor; intermediate
				// messages were never captured. Worth an operator's eye if a
				// partial backfill or data repair left the chain split.
				s.log.Warnf("thread match via non-immediate ancestor %s for user %s (thread %s)", messageID, in.userID, threadID)
			}
			return threadID, nil
		}
	}

	// Case 3: subject + participant overlap, only when the caller opted in.
	// Distinct conversations frequently share a subject ("Invoice"), so this
	// stays off the default path.
	if in.opts.SubjectFallback {
		threadID, _ = s.findThreadBySubjectMatch(ctx, in)
		return threadID, nil
	}

	return "", nil
}

func (s *threadingService) checkOrphanReference(ctx context.Context, in resolveInput) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.checkOrphanReference")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	// Only a potential ancestor qualifies: a message that itself replies to
	// something resolves through its own chain instead.
	if in.refs.HasParentLinks() || in.refs.MessageID == "" {
		return "", nil
	}

	orphan, err := s.repositories.OrphanReferenceRepository.GetByMessageID(ctx, in.userID, in.refs.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if orphan == nil || orphan.ThreadID == "" {
		return "", nil
	}

	if err := s.repositories.OrphanReferenceRepository.DeleteByThreadID(ctx, orphan.ThreadID); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return orphan.ThreadID, nil
}

// findThreadByMessageID looks for a stored, already-threaded message carrying
// the given Message-ID, inbound first then outbound, scoped to the account.
func (s *threadingService) findThreadByMessageID(ctx context.Context, userID, messageID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.findThreadByMessageID")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message_id", messageID)

	inbound, err := s.repositories.InboundEmailRepository.GetByMessageID(ctx, userID, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if inbound != nil && inbound.IsAssigned() {
		return inbound.ThreadID, nil
	}

	outbound, err := s.repositories.OutboundEmailRepository.GetByMessageID(ctx, userID, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if outbound != nil && outbound.IsAssigned() {
		return outbound.ThreadID, nil
	}

	return "", nil
}

func (s *threadingService) findThreadBySubjectMatch(ctx context.Context, in resolveInput) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.findThreadBySubjectMatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if in.refs.NormalizedSubject == "" {
		return "", nil
	}

	threads, err := s.repositories.EmailThreadRepository.FindBySubjectAndUser(ctx, in.refs.NormalizedSubject, in.userID)
	if err != nil {
		// Best-effort fallback: log and carry on to a new thread
		tracing.TraceErr(span, err)
		span.LogKV("warning", "subject-based thread matching failed")
		return "", nil
	}

	if len(threads) == 0 {
		return "", nil
	}

	// Multiple threads can share a subject; pick the one sharing the most
	// participants, and require at least one overlap.
	bestMatchThreadID := ""
	highestOverlap := 0

	for _, thread := range threads {
		overlap := 0
		for _, participant := range in.assign.Participants {
			if utils.ContainsFold(thread.Participants, participant) {
				overlap++
			}
		}
		if overlap > highestOverlap {
			highestOverlap = overlap
			bestMatchThreadID = thread.ID
		}
	}

	if highestOverlap > 0 {
		return bestMatchThreadID, nil
	}

	return "", nil
}

// createNewThread starts a thread rooted at this message. Records the
// message's unresolved ancestors so they can adopt the thread if they arrive
// later.
func (s *threadingService) createNewThread(ctx context.Context, in resolveInput) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.createNewThread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	rootMessageID := in.refs.MessageID
	if rootMessageID == "" {
		// Capture paths that lose the Message-ID still need a root identity
		rootMessageID = utils.NormalizeMessageID(utils.GenerateMessageID("mailcore.invalid", in.assign.MessageRowID))
	}

	threadID, err := s.repositories.EmailThreadRepository.CreateWithFirstMessage(ctx, &models.EmailThread{
		UserID:        in.userID,
		RootMessageID: rootMessageID,
		Subject:       in.refs.NormalizedSubject,
	}, in.assign)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	if err := s.recordMissingParents(ctx, in, threadID); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return threadID, nil
}

func (s *threadingService) recordMissingParents(ctx context.Context, in resolveInput, threadID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadingService.recordMissingParents")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	for _, messageID := range in.refs.References {
		if _, err := s.repositories.OrphanReferenceRepository.Create(ctx, &models.OrphanReference{
			UserID:       in.userID,
			MessageID:    messageID,
			ReferencedBy: in.refs.MessageID,
			ThreadID:     threadID,
		}); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	return nil
}

// validParticipants drops addresses that fail syntax validation before they
// pollute the thread participant set.
func validParticipants(addresses []string) []string {
	valid := make([]string, 0, len(addresses))
	for _, address := range addresses {
		bare := utils.ExtractEmailAddress(address)
		if bare == "" {
			continue
		}
		if validation := mailvalidate.ValidateEmailSyntax(bare); !validation.IsValid {
			continue
		}
		valid = append(valid, bare)
	}
	return valid
}
